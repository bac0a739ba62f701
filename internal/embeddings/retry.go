// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/logger"
)

// RetryingEmbedder wraps an Embedder with bounded retry and exponential
// backoff on failure, so transient provider errors never surface to the
// pipeline on the first attempt.
type RetryingEmbedder struct {
	inner      Embedder
	maxRetries int
	baseDelay  time.Duration
	log        *logger.Logger
}

// NewRetryingEmbedder wraps inner with up to maxRetries retries after the
// first attempt, doubling baseDelay between each.
func NewRetryingEmbedder(inner Embedder, maxRetries int, baseDelay time.Duration) *RetryingEmbedder {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &RetryingEmbedder{inner: inner, maxRetries: maxRetries, baseDelay: baseDelay, log: logger.GetDefault()}
}

func (r *RetryingEmbedder) Dimension() int    { return r.inner.Dimension() }
func (r *RetryingEmbedder) ModelName() string { return r.inner.ModelName() }

func (r *RetryingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.withRetry(ctx, func() error {
		var embedErr error
		vec, embedErr = r.inner.EmbedText(ctx, text)
		return embedErr
	})
	return vec, err
}

func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.withRetry(ctx, func() error {
		var embedErr error
		vecs, embedErr = r.inner.EmbedBatch(ctx, texts)
		return embedErr
	})
	return vecs, err
}

func (r *RetryingEmbedder) withRetry(ctx context.Context, attempt func() error) error {
	delay := r.baseDelay
	var lastErr error
	for i := 0; i <= r.maxRetries; i++ {
		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		if i == r.maxRetries {
			break
		}
		r.log.Warnf("embedding call failed (attempt %d/%d), retrying in %s: %v", i+1, r.maxRetries, delay, lastErr)
		select {
		case <-ctx.Done():
			return apierr.Wrap(apierr.CodeTimeout, "embedding retry cancelled", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return apierr.Wrap(apierr.CodeEmbeddingError, "embedding failed after retries", lastErr)
}

var _ Embedder = (*RetryingEmbedder)(nil)
