// Package retrieval fans queries out across namespaces and fuses the
// results into LLM-ready context.
package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborlight/corpusd/internal/tenant"
	"github.com/harborlight/corpusd/internal/vectorstore"
)

// Defaults observed to balance recall against the context budget.
const (
	DefaultTopKPerNamespace = 24
	DefaultFinalTopK        = 8
)

// Embedder is the slice of the embedding provider retrieval needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Querier is the slice of the vector store client retrieval needs.
type Querier interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.Row, error)
}

// Config tunes fusion and formatting.
type Config struct {
	TopKPerNamespace int
	FinalTopK        int
	// ContextBudget caps the fully formatted context string, in characters.
	ContextBudget int
}

// Query describes one retrieval request.
type Query struct {
	Text    string
	Sources []tenant.SourceType
	Scope   tenant.Scope
	// ProjectID scopes rows inside shared namespaces. Required whenever the
	// scope is shared, because the default namespace mixes tenants.
	ProjectID string
	// ExcludeDocIDs removes specific documents from the candidate set.
	ExcludeDocIDs []string
	// Channel and User narrow conversational sources.
	Channel string
	User    string
	// CreatedAfter/CreatedBefore bound rows by source creation time.
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// Service performs multi-namespace retrieval fusion.
type Service struct {
	embedder Embedder
	store    Querier
	logger   *zap.Logger
	cfg      Config
}

// NewService creates a retrieval service.
func NewService(embedder Embedder, store Querier, logger *zap.Logger, cfg Config) *Service {
	if cfg.TopKPerNamespace <= 0 {
		cfg.TopKPerNamespace = DefaultTopKPerNamespace
	}
	if cfg.FinalTopK <= 0 {
		cfg.FinalTopK = DefaultFinalTopK
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		logger:   logger.Named("retrieval"),
		cfg:      cfg,
	}
}

// Retrieve embeds the query once, issues one query per namespace
// concurrently, and fuses the results by ascending distance, capped to the
// final top-k.
func (s *Service) Retrieve(ctx context.Context, q Query) ([]vectorstore.Row, error) {
	namespaces, err := tenant.NamespacesFor(q.Sources, q.Scope)
	if err != nil {
		return nil, err
	}
	if len(namespaces) == 0 {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fused []vectorstore.Row
	)

	for _, ns := range namespaces {
		wg.Add(1)
		go func(ns string) {
			defer wg.Done()

			rows, err := s.store.Query(ctx, ns, vector, s.cfg.TopKPerNamespace, s.filterFor(ns, q))
			if err != nil {
				s.logger.Warn("namespace query failed",
					zap.String("namespace", ns),
					zap.Error(err))
				return
			}

			mu.Lock()
			fused = append(fused, rows...)
			mu.Unlock()
		}(ns)
	}
	wg.Wait()

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Dist == nil {
			return false
		}
		if fused[j].Dist == nil {
			return true
		}
		return *fused[i].Dist < *fused[j].Dist
	})

	if len(fused) > s.cfg.FinalTopK {
		fused = fused[:s.cfg.FinalTopK]
	}
	return fused, nil
}

// RetrieveContext retrieves and formats context for the chat path. It is
// best-effort: every failure is logged and reported as no context, never
// surfaced to the end user.
func (s *Service) RetrieveContext(ctx context.Context, q Query) string {
	rows, err := s.Retrieve(ctx, q)
	if err != nil {
		s.logger.Warn("retrieval failed, answering without context", zap.Error(err))
		return ""
	}
	return s.FormatContext(rows)
}

// filterFor builds the per-namespace filter set. Shared namespaces always
// carry the project id filter to keep tenants apart.
func (s *Service) filterFor(namespace string, q Query) vectorstore.Filter {
	filters := []vectorstore.Filter{
		vectorstore.NotIn("doc_id", q.ExcludeDocIDs),
	}

	if tenant.IsShared(namespace) {
		filters = append(filters, vectorstore.Eq("project_id", q.ProjectID))
	}

	if source, ok := tenant.InferSourceType(namespace); ok && source == tenant.SourceSlack {
		filters = append(filters,
			vectorstore.Eq("channel", q.Channel),
			vectorstore.Eq("user", q.User),
		)
	}

	if !q.CreatedAfter.IsZero() {
		filters = append(filters, vectorstore.Gte("source_created_at", q.CreatedAfter.UTC().Format(time.RFC3339)))
	}
	if !q.CreatedBefore.IsZero() {
		filters = append(filters, vectorstore.Lte("source_created_at", q.CreatedBefore.UTC().Format(time.RFC3339)))
	}

	return vectorstore.And(filters...)
}
