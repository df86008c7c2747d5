// Package extraction turns financial documents into normalized
// transaction rows via an external schema-extraction service, with a
// heuristic CSV fallback for plain statement exports.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrExtractionFailed indicates the extraction service failed after
	// retries were exhausted.
	ErrExtractionFailed = errors.New("document extraction failed")

	// ErrAsyncResult indicates the service answered with an async job
	// handle, which this client does not poll.
	ErrAsyncResult = errors.New("extraction service returned an async job handle")
)

const (
	defaultClientTimeout = 60 * time.Second
	defaultMaxRetries    = 2
	defaultBaseBackoff   = 500 * time.Millisecond

	// Requests per second against the extraction service.
	defaultRateLimit = 2
	defaultBurst     = 4
)

// retryableError wraps errors worth a retry: transport failures and
// service-side 5xx responses.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// RawRow is one transaction row as reported by the extraction service or
// the CSV fallback, before normalization.
type RawRow struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
}

// Payload is the full extraction result for one document.
type Payload struct {
	Rows   []RawRow
	Vendor string
	Total  string
	// Raw is the service's response body, kept for the audit trail.
	Raw json.RawMessage
}

// ClientConfig configures the extraction service client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the external schema-extraction service. The protocol is
// upload-then-extract: the document bytes go up first, then an extract
// call references the returned file id.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewClient creates an extraction service client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("extraction service base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

type uploadResponse struct {
	FileID string `json:"file_id"`
}

type extractRequest struct {
	FileID   string `json:"file_id"`
	DocType  string `json:"doc_type"`
	Filename string `json:"filename,omitempty"`
}

type extractResponse struct {
	Status string   `json:"status"`
	JobID  string   `json:"job_id,omitempty"`
	Rows   []RawRow `json:"rows"`
	Vendor string   `json:"vendor,omitempty"`
	Total  string   `json:"total,omitempty"`
}

// ExtractDocument uploads the document bytes and requests schema
// extraction for the given doc type.
func (c *Client) ExtractDocument(ctx context.Context, filename, mimeType, docType string, data []byte) (*Payload, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	fileID, err := c.upload(ctx, filename, mimeType, data)
	if err != nil {
		return nil, err
	}

	body, err := c.withRetries(ctx, func() ([]byte, error) {
		return c.doExtract(ctx, extractRequest{FileID: fileID, DocType: docType, Filename: filename})
	})
	if err != nil {
		return nil, err
	}

	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExtractionFailed, err)
	}
	if resp.JobID != "" || resp.Status == "pending" {
		return nil, fmt.Errorf("%w: job %s", ErrAsyncResult, resp.JobID)
	}

	return &Payload{
		Rows:   resp.Rows,
		Vendor: resp.Vendor,
		Total:  resp.Total,
		Raw:    json.RawMessage(body),
	}, nil
}

func (c *Client) upload(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	body, err := c.withRetries(ctx, func() ([]byte, error) {
		return c.doUpload(ctx, filename, mimeType, data)
	})
	if err != nil {
		return "", err
	}
	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode upload response: %v", ErrExtractionFailed, err)
	}
	if resp.FileID == "" {
		return "", fmt.Errorf("%w: upload returned no file id", ErrExtractionFailed)
	}
	return resp.FileID, nil
}

func (c *Client) doUpload(ctx context.Context, filename, mimeType string, data []byte) ([]byte, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	if filename != "" {
		req.Header.Set("X-Filename", filename)
	}
	return c.do(req)
}

func (c *Client) doExtract(ctx context.Context, er extractRequest) ([]byte, error) {
	payload, err := json.Marshal(er)
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("extraction request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &retryableError{err: fmt.Errorf("%w: status %d: %s",
			ErrExtractionFailed, resp.StatusCode, snippet(body))}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s",
			ErrExtractionFailed, resp.StatusCode, snippet(body))
	}
	return body, nil
}

func (c *Client) withRetries(ctx context.Context, call func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		body, err := call()
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func snippet(body []byte) string {
	const max = 256
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
