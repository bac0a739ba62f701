// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
)

// flakyEmbedder fails the first failures calls, then succeeds.
type flakyEmbedder struct {
	inner    *MockEmbedder
	failures int
	calls    int
}

func (f *flakyEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient upstream failure")
	}
	return f.inner.EmbedText(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient upstream failure")
	}
	return f.inner.EmbedBatch(ctx, texts)
}

func (f *flakyEmbedder) Dimension() int    { return f.inner.Dimension() }
func (f *flakyEmbedder) ModelName() string { return f.inner.ModelName() }

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewMockEmbedder(8), failures: 2}
	r := NewRetryingEmbedder(flaky, 3, time.Millisecond)

	vec, err := r.EmbedText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("dimension = %d, want 8", len(vec))
	}
	if flaky.calls != 3 {
		t.Errorf("calls = %d, want 3", flaky.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewMockEmbedder(8), failures: 100}
	r := NewRetryingEmbedder(flaky, 2, time.Millisecond)

	_, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *apierr.Error", err)
	}
	if apiErr.Code != apierr.CodeEmbeddingError {
		t.Errorf("code = %v, want %v", apiErr.Code, apierr.CodeEmbeddingError)
	}
	if flaky.calls != 3 { // initial attempt + 2 retries
		t.Errorf("calls = %d, want 3", flaky.calls)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	flaky := &flakyEmbedder{inner: NewMockEmbedder(8), failures: 100}
	r := NewRetryingEmbedder(flaky, 5, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.EmbedText(ctx, "hello")
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *apierr.Error", err)
	}
	if apiErr.Code != apierr.CodeTimeout {
		t.Errorf("code = %v, want %v", apiErr.Code, apierr.CodeTimeout)
	}
	if flaky.calls > 2 {
		t.Errorf("kept retrying after cancel: %d calls", flaky.calls)
	}
}

func TestRetryingEmbedderPassesThroughIdentity(t *testing.T) {
	inner := NewMockEmbedder(16)
	r := NewRetryingEmbedder(inner, 1, time.Millisecond)
	if r.Dimension() != 16 {
		t.Errorf("Dimension = %d, want 16", r.Dimension())
	}
	if r.ModelName() != inner.ModelName() {
		t.Errorf("ModelName = %q, want %q", r.ModelName(), inner.ModelName())
	}
}
