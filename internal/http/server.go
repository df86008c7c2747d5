// Package http exposes the corpusd HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/extraction"
	"github.com/harborlight/corpusd/internal/ingest"
	"github.com/harborlight/corpusd/internal/retrieval"
	"github.com/harborlight/corpusd/internal/store"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

// backgroundTimeout bounds detached ingest and extract runs. They outlive
// the triggering request, so they carry their own deadline.
const backgroundTimeout = 10 * time.Minute

// Ingestor is the indexing surface the API drives.
type Ingestor interface {
	Ingest(ctx context.Context, docID string) (*ingest.IngestResult, error)
	Delete(ctx context.Context, docID string) error
}

// Extractor is the structured extraction surface the API drives.
type Extractor interface {
	Extract(ctx context.Context, docID string) (*extraction.Result, error)
}

// Retriever answers retrieval queries.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) ([]vectorstore.Row, error)
	FormatContext(rows []vectorstore.Row) string
}

// DocumentGetter reads document records for request validation.
type DocumentGetter interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the corpusd HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	docs      DocumentGetter
	ingestor  Ingestor
	extractor Extractor
	retriever Retriever
	logger    *zap.Logger
	config    *Config
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(docs DocumentGetter, ingestor Ingestor, extractor Extractor, retriever Retriever, logger *zap.Logger, cfg *Config) (*Server, error) {
	if docs == nil || ingestor == nil || extractor == nil || retriever == nil {
		return nil, fmt.Errorf("all service dependencies are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		docs:      docs,
		ingestor:  ingestor,
		extractor: extractor,
		retriever: retriever,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/retrieve", s.handleRetrieve)
	v1.POST("/documents/:id/ingest", s.handleIngest)
	v1.POST("/documents/:id/extract", s.handleExtract)
	v1.DELETE("/documents/:id/vectors", s.handleDeleteVectors)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// background runs fn detached from the request with its own deadline.
func (s *Server) background(name, docID string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.Warn("background task failed",
				zap.String("task", name),
				zap.String("doc_id", docID),
				zap.Error(err))
		}
	}()
}

func httpError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, ingest.ErrDocumentDeleting):
		return echo.NewHTTPError(http.StatusConflict, "document is being deleted")
	case errors.Is(err, extraction.ErrUnsupportedDocType):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "document type not parsed by this pipeline")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
