package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "text-embedding-3-small"

var openAIModelDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// openAIProvider generates embeddings via the OpenAI embeddings API.
type openAIProvider struct {
	client     *openai.Client
	model      string
	dimension  int
	maxRetries int
	metrics    *Metrics
}

func newOpenAIProvider(apiKey, model string, timeout time.Duration) (*openAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: OPENAI key missing", ErrNotConfigured)
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	dim, ok := openAIModelDimensions[model]
	if !ok {
		dim = 1536
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &openAIProvider{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimension:  dim,
		maxRetries: defaultMaxRetries,
		metrics:    NewMetrics(),
	}, nil
}

func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := p.embed(ctx, text)
	p.metrics.RecordEmbed(ctx, "openai", p.model, time.Since(start), err)
	return vector, err
}

func (p *openAIProvider) embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	return withRetries(ctx, p.maxRetries, func(ctx context.Context) ([]float32, error) {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.model),
			Input: []string{text},
		})
		if err != nil {
			return nil, classifyOpenAIError(err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
		}

		vector := make([]float32, len(resp.Data[0].Embedding))
		copy(vector, resp.Data[0].Embedding)
		return vector, nil
	})
}

func (p *openAIProvider) Model() string  { return p.model }
func (p *openAIProvider) Dimension() int { return p.dimension }

// classifyOpenAIError wraps server-class failures as retryable. 4xx responses
// fail immediately.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)}
		}
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)}
		}
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	// Transport failure with no HTTP response.
	return &retryableError{err: fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)}
}
