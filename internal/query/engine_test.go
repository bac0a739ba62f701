// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"context"
	"testing"

	"github.com/northbound/rag-core/internal/vectorindex"
)

func TestDetectType(t *testing.T) {
	cases := []struct {
		query string
		want  Type
	}{
		{"how many incidents were opened last week", TypeAggregation},
		{"list all the documents about networking", TypeListing},
		{"show all the servers tagged production", TypeListing},
		{"find documents from the compliance team", TypeFilteredSearch},
		{"what is the VPN gateway's session limit", TypeSemanticSearch},
	}
	for _, c := range cases {
		if got := DetectType(c.query); got != c.want {
			t.Errorf("DetectType(%q) = %s, want %s", c.query, got, c.want)
		}
	}
}

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) EmbedText(_ context.Context, _ string) ([]float32, error) {
	v := make([]float32, f.dim)
	v[0] = 1
	return v, nil
}
func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = f.EmbedText(ctx, texts[i])
	}
	return out, nil
}
func (f fakeEmbedder) Dimension() int  { return f.dim }
func (f fakeEmbedder) ModelName() string { return "fake" }

func TestDenseEngine_SemanticSearchReturnsExtractiveResponseWithoutLLM(t *testing.T) {
	idx := vectorindex.NewIndex(4, vectorindex.DefaultConfig())
	_, err := idx.AddVectors([][]float32{{1, 0, 0, 0}}, []map[string]any{
		{"text": "The VPN gateway supports 500 concurrent sessions.", "doc_path": "vpn.md"},
	})
	if err != nil {
		t.Fatalf("AddVectors failed: %v", err)
	}

	engine := NewDenseEngine(idx, fakeEmbedder{dim: 4}, nil)
	result, err := engine.ProcessQuery(context.Background(), "what is the VPN gateway's session limit?", 5, nil)
	if err != nil {
		t.Fatalf("ProcessQuery failed: %v", err)
	}
	if result.TotalSources != 1 {
		t.Fatalf("expected 1 source, got %d", result.TotalSources)
	}
	if result.Method != "extractive" {
		t.Fatalf("expected extractive method without an LLM, got %s", result.Method)
	}
}

func TestDenseEngine_DegradesOnListingQuery(t *testing.T) {
	idx := vectorindex.NewIndex(4, vectorindex.DefaultConfig())
	engine := NewDenseEngine(idx, fakeEmbedder{dim: 4}, nil)

	result, err := engine.ProcessQuery(context.Background(), "list all the documents about networking", 5, nil)
	if err != nil {
		t.Fatalf("ProcessQuery failed: %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected a listing query against the classical index to degrade")
	}
	if result.QueryType != TypeListing {
		t.Fatalf("expected QueryType listing, got %s", result.QueryType)
	}
}

func TestConfidenceLevel(t *testing.T) {
	if confidenceLevel(0.9) != "high" {
		t.Fatal("expected high confidence level")
	}
	if confidenceLevel(0.6) != "medium" {
		t.Fatal("expected medium confidence level")
	}
	if confidenceLevel(0.1) != "low" {
		t.Fatal("expected low confidence level")
	}
}
