package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// retryableError marks failures worth retrying (5xx, transport errors).
// Client errors (4xx, bad input) are returned bare and fail immediately.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// withRetries runs fn up to maxRetries+1 times with exponential backoff
// (baseBackoff * 3^attempt). Only retryable errors are re-attempted.
func withRetries(ctx context.Context, maxRetries int, fn func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff
			for i := 1; i < attempt; i++ {
				backoff *= 3
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vector, err := fn(ctx)
		if err == nil {
			return vector, nil
		}

		if !isRetryableError(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: retries exhausted: %v", ErrEmbeddingFailed, lastErr)
}
