// Corpusd is the document retrieval and extraction daemon.
//
// It indexes project documents and conversations into a namespaced vector
// store, answers retrieval queries with fused, formatted context, and runs
// the structured extraction pipeline that turns financial documents into
// transaction rows.
//
// Configuration is loaded from an optional YAML file plus CORPUSD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start with environment configuration
//	CORPUSD_DATABASE_DSN=... CORPUSD_VECTORSTORE_BASE_URL=... corpusd
//
//	# Start with a config file
//	corpusd -config /etc/corpusd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/blob"
	"github.com/harborlight/corpusd/internal/chunk"
	"github.com/harborlight/corpusd/internal/config"
	"github.com/harborlight/corpusd/internal/embeddings"
	"github.com/harborlight/corpusd/internal/extraction"
	corpushttp "github.com/harborlight/corpusd/internal/http"
	"github.com/harborlight/corpusd/internal/ingest"
	"github.com/harborlight/corpusd/internal/logging"
	"github.com/harborlight/corpusd/internal/retrieval"
	"github.com/harborlight/corpusd/internal/store"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "corpusd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(cfg.Database.DSN.Value())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	blobStore, err := blob.New(ctx, blob.Config{
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey.Value(),
		SecretKey: cfg.Blob.SecretKey.Value(),
		Bucket:    cfg.Blob.Bucket,
		UseSSL:    cfg.Blob.UseSSL,
		PublicURL: cfg.Blob.PublicURL,
	})
	if err != nil {
		return fmt.Errorf("init blob storage: %w", err)
	}

	vectors, err := vectorstore.NewClient(vectorstore.ClientConfig{
		BaseURL:      cfg.VectorStore.BaseURL,
		APIKey:       cfg.VectorStore.APIKey.Value(),
		QueryTimeout: cfg.VectorStore.QueryTimeout.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("init vector store client: %w", err)
	}

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:      cfg.Embeddings.Provider,
		OpenAIKey:     cfg.Embeddings.OpenAIKey.Value(),
		OpenAIModel:   cfg.Embeddings.OpenAIModel,
		VoyageKey:     cfg.Embeddings.VoyageKey.Value(),
		VoyageModel:   cfg.Embeddings.VoyageModel,
		VoyageBaseURL: cfg.Embeddings.VoyageBaseURL,
		Timeout:       cfg.Embeddings.Timeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}
	logger.Info("embedding provider ready",
		zap.String("model", embedder.Model()),
		zap.Int("dimension", embedder.Dimension()))

	extractClient, err := extraction.NewClient(extraction.ClientConfig{
		BaseURL: cfg.Extraction.BaseURL,
		APIKey:  cfg.Extraction.APIKey.Value(),
		Timeout: cfg.Extraction.Timeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("init extraction client: %w", err)
	}

	orchestrator := ingest.New(db, vectors, embedder, blobStore, chunk.NewChunker(chunk.DefaultMaxLen, chunk.DefaultOverlap), logger)
	retriever := retrieval.NewService(embedder, vectors, logger, retrieval.Config{
		TopKPerNamespace: cfg.Retrieval.TopKPerNamespace,
		FinalTopK:        cfg.Retrieval.FinalTopK,
		ContextBudget:    cfg.Retrieval.ContextBudget,
	})
	extractor := extraction.NewService(db, blobStore, extractClient, orchestrator, logger)

	server, err := corpushttp.NewServer(db, orchestrator, extractor, retriever, logger, &corpushttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
