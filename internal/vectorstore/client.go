package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sentinel errors for vector store operations.
var (
	// ErrNamespaceNotFound is returned when a namespace does not exist.
	// Reads treat it as an empty namespace; writes log and continue.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrStoreFailed indicates a non-"not found" failure from the index
	// service.
	ErrStoreFailed = errors.New("vector store request failed")

	// ErrInvalidConfig indicates invalid client configuration.
	ErrInvalidConfig = errors.New("invalid vector store configuration")
)

const (
	defaultQueryTimeout = 8 * time.Second

	// maxDeleteIterations caps the delete-by-filter pagination loop. The
	// service contract says each call strictly reduces matching rows; the
	// cap guards a violated contract from looping forever.
	maxDeleteIterations = 1000
)

// ClientConfig holds configuration for the vector store client.
type ClientConfig struct {
	// BaseURL is the index service endpoint, e.g. https://api.turbopuffer.com.
	BaseURL string
	// APIKey is the bearer token.
	APIKey string
	// QueryTimeout bounds each query call. Zero means the 8s default.
	QueryTimeout time.Duration
}

// Client talks to the namespace-scoped vector index service.
type Client struct {
	baseURL      string
	apiKey       string
	queryTimeout time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
	metrics      *Metrics
}

// NewClient creates a vector store client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		queryTimeout: queryTimeout,
		httpClient:   &http.Client{},
		logger:       logger.Named("vectorstore"),
		metrics:      NewMetrics(),
	}, nil
}

// upsertRequest is the write body for a namespace.
type upsertRequest struct {
	UpsertRows []Row `json:"upsert_rows"`
}

// queryRequest is the body for a namespace query.
type queryRequest struct {
	RankBy            []interface{} `json:"rank_by"`
	TopK              int           `json:"top_k"`
	Filters           *Filter       `json:"filters,omitempty"`
	IncludeAttributes bool          `json:"include_attributes"`
}

// queryResponse is the response body for a namespace query.
type queryResponse struct {
	Rows []Row `json:"rows"`
}

// deleteRequest is the body for a filtered bulk delete.
type deleteRequest struct {
	DeleteByFilter     Filter `json:"delete_by_filter"`
	AllowPartialDelete bool   `json:"delete_by_filter_allow_partial"`
}

// deleteResponse is the response body for a filtered bulk delete.
type deleteResponse struct {
	RowsAffected int `json:"rows_affected"`
}

// Upsert writes rows to a namespace. Re-upserting a row with the same id
// overwrites in place. A missing namespace is logged and swallowed to
// tolerate races with namespace deletion; all other failures surface.
func (c *Client) Upsert(ctx context.Context, namespace string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	err := c.post(ctx, namespacePath(namespace), upsertRequest{UpsertRows: rows}, nil)
	c.metrics.RecordOp(ctx, "upsert", time.Since(start), err)

	if errors.Is(err, ErrNamespaceNotFound) {
		c.logger.Warn("upsert into missing namespace dropped",
			zap.String("namespace", namespace),
			zap.Int("rows", len(rows)))
		return nil
	}
	return err
}

// Query runs an ANN search over a namespace and returns rows sorted by
// ascending distance. A missing namespace behaves like a namespace with
// zero rows. Each call is bounded by the configured query timeout.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, topK int, filter Filter) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	req := queryRequest{
		RankBy:            []interface{}{"vector", "ANN", vector},
		TopK:              topK,
		IncludeAttributes: true,
	}
	if !filter.IsZero() {
		req.Filters = &filter
	}

	start := time.Now()
	var resp queryResponse
	err := c.post(ctx, namespacePath(namespace)+"/query", req, &resp)
	c.metrics.RecordOp(ctx, "query", time.Since(start), err)

	if errors.Is(err, ErrNamespaceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows := resp.Rows
	sort.SliceStable(rows, func(i, j int) bool {
		// rows without a distance sort last
		if rows[i].Dist == nil {
			return false
		}
		if rows[j].Dist == nil {
			return true
		}
		return *rows[i].Dist < *rows[j].Dist
	})
	return rows, nil
}

// DeleteByFilter removes all rows matching filter, re-issuing the delete
// until the service reports no remaining matches, and returns the total
// rows deleted. The service may only partially apply each call.
func (c *Client) DeleteByFilter(ctx context.Context, namespace string, filter Filter) (int, error) {
	if filter.IsZero() {
		return 0, fmt.Errorf("%w: refusing unfiltered delete", ErrInvalidConfig)
	}

	req := deleteRequest{DeleteByFilter: filter, AllowPartialDelete: true}

	total := 0
	for i := 0; i < maxDeleteIterations; i++ {
		start := time.Now()
		var resp deleteResponse
		err := c.post(ctx, namespacePath(namespace), req, &resp)
		c.metrics.RecordOp(ctx, "delete_by_filter", time.Since(start), err)

		if errors.Is(err, ErrNamespaceNotFound) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if resp.RowsAffected == 0 {
			return total, nil
		}
		total += resp.RowsAffected
	}

	c.logger.Error("delete-by-filter did not converge",
		zap.String("namespace", namespace),
		zap.Int("rows_deleted", total))
	return total, fmt.Errorf("%w: delete-by-filter exceeded %d iterations", ErrStoreFailed, maxDeleteIterations)
}

// post issues one JSON request and decodes the response into out when
// non-nil.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNamespaceNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrStoreFailed, resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func namespacePath(namespace string) string {
	return "/v2/namespaces/" + namespace
}
