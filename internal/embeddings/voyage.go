package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultVoyageBaseURL = "https://api.voyageai.com/v1"
	defaultVoyageModel   = "voyage-3-lite"
)

var voyageModelDimensions = map[string]int{
	"voyage-3-lite":  512,
	"voyage-3":       1024,
	"voyage-3-large": 1024,
}

// voyageProvider generates embeddings via the Voyage AI API, the low-cost
// secondary provider.
type voyageProvider struct {
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
	maxRetries int
	metrics    *Metrics
}

func newVoyageProvider(apiKey, model, baseURL string, timeout time.Duration) (*voyageProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: voyage key missing", ErrNotConfigured)
	}
	if model == "" {
		model = defaultVoyageModel
	}
	if baseURL == "" {
		baseURL = defaultVoyageBaseURL
	}
	dim, ok := voyageModelDimensions[model]
	if !ok {
		dim = 1024
	}

	return &voyageProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimension:  dim,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: defaultMaxRetries,
		metrics:    NewMetrics(),
	}, nil
}

// voyageRequest is the request body for the embeddings endpoint.
type voyageRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// voyageResponse is the response body for the embeddings endpoint.
type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *voyageProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := p.embed(ctx, text)
	p.metrics.RecordEmbed(ctx, "voyage", p.model, time.Since(start), err)
	return vector, err
}

func (p *voyageProvider) embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	return withRetries(ctx, p.maxRetries, func(ctx context.Context) ([]float32, error) {
		return p.doRequest(ctx, text)
	})
}

func (p *voyageProvider) doRequest(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(voyageRequest{Model: p.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &retryableError{err: fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, respBody)
	}

	var decoded voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}

	return decoded.Data[0].Embedding, nil
}

func (p *voyageProvider) Model() string  { return p.model }
func (p *voyageProvider) Dimension() int { return p.dimension }
