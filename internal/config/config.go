// Package config provides configuration loading for corpusd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors.
var (
	ErrMissingVectorStoreURL = errors.New("vector store base URL is required")
	ErrMissingVectorStoreKey = errors.New("vector store API key is required")
	ErrMissingDatabaseDSN    = errors.New("database DSN is required")
	ErrInvalidProvider       = errors.New("embedding provider must be openai, voyage, or auto")
)

// Config is the root configuration for corpusd.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Extraction  ExtractionConfig  `koanf:"extraction"`
	Database    DatabaseConfig    `koanf:"database"`
	Blob        BlobConfig        `koanf:"blob"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors logging.Config fields loadable from YAML/env.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai", "voyage", or "auto". Auto prefers voyage when
	// its key is set, falling back to openai.
	Provider      string   `koanf:"provider"`
	OpenAIKey     Secret   `koanf:"openai_key"`
	OpenAIModel   string   `koanf:"openai_model"`
	VoyageKey     Secret   `koanf:"voyage_key"`
	VoyageModel   string   `koanf:"voyage_model"`
	VoyageBaseURL string   `koanf:"voyage_base_url"`
	Timeout       Duration `koanf:"timeout"`
}

// VectorStoreConfig configures the external vector index service.
type VectorStoreConfig struct {
	BaseURL      string   `koanf:"base_url"`
	APIKey       Secret   `koanf:"api_key"`
	QueryTimeout Duration `koanf:"query_timeout"`
}

// ExtractionConfig configures the structured extraction service.
type ExtractionConfig struct {
	BaseURL string   `koanf:"base_url"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// DatabaseConfig configures the Postgres metadata store.
type DatabaseConfig struct {
	DSN Secret `koanf:"dsn"`
}

// BlobConfig configures object storage.
type BlobConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey Secret `koanf:"access_key"`
	SecretKey Secret `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
	PublicURL string `koanf:"public_url"`
}

// RetrievalConfig tunes retrieval fusion and context formatting.
type RetrievalConfig struct {
	TopKPerNamespace int `koanf:"top_k_per_namespace"`
	FinalTopK        int `koanf:"final_top_k"`
	ContextBudget    int `koanf:"context_budget"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9180,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "auto",
			OpenAIModel: "text-embedding-3-small",
			VoyageModel: "voyage-3-lite",
			Timeout:     Duration(20 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			QueryTimeout: Duration(8 * time.Second),
		},
		Extraction: ExtractionConfig{
			Timeout: Duration(60 * time.Second),
		},
		Retrieval: RetrievalConfig{
			TopKPerNamespace: 24,
			FinalTopK:        8,
			ContextBudget:    12000,
		},
	}
}

// Validate checks required settings. Missing credentials for collaborators
// that a deployment actually uses surface here rather than on first use.
func (c *Config) Validate() error {
	switch c.Embeddings.Provider {
	case "openai", "voyage", "auto":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidProvider, c.Embeddings.Provider)
	}
	if c.VectorStore.BaseURL == "" {
		return ErrMissingVectorStoreURL
	}
	if !c.VectorStore.APIKey.IsSet() {
		return ErrMissingVectorStoreKey
	}
	if !c.Database.DSN.IsSet() {
		return ErrMissingDatabaseDSN
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Retrieval.TopKPerNamespace <= 0 || c.Retrieval.FinalTopK <= 0 {
		return fmt.Errorf("retrieval top-k values must be positive")
	}
	return nil
}
