// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for embedding operations.
var (
	// ErrNotConfigured indicates no credential is available for the
	// selected provider.
	ErrNotConfigured = errors.New("embedding provider not configured")

	// ErrEmbeddingFailed indicates upstream embedding failure after
	// exhausting retries.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")
)

// Default request policy shared by all providers.
const (
	defaultTimeout     = 20 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 250 * time.Millisecond
)

// Provider is the interface for embedding providers.
type Provider interface {
	// Embed turns text into a fixed-length vector.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model returns the model name in use.
	Model() string
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is "openai", "voyage", or "auto". Auto prefers voyage (the
	// low-cost provider) when its key is present, falling back to openai.
	Provider      string
	OpenAIKey     string
	OpenAIModel   string
	VoyageKey     string
	VoyageModel   string
	VoyageBaseURL string
	// Timeout bounds each outbound request. Zero means the 20s default.
	Timeout time.Duration
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel, timeout)
	case "voyage":
		return newVoyageProvider(cfg.VoyageKey, cfg.VoyageModel, cfg.VoyageBaseURL, timeout)
	case "auto", "":
		if cfg.VoyageKey != "" {
			return newVoyageProvider(cfg.VoyageKey, cfg.VoyageModel, cfg.VoyageBaseURL, timeout)
		}
		if cfg.OpenAIKey != "" {
			return newOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel, timeout)
		}
		return nil, fmt.Errorf("%w: no provider credential set", ErrNotConfigured)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
