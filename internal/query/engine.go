// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/embeddings"
	"github.com/northbound/rag-core/internal/llm"
	"github.com/northbound/rag-core/internal/logger"
	"github.com/northbound/rag-core/internal/vectorindex"
)

// Type classifies a processed query by the kind of retrieval it needs,
// mirroring the Qdrant-backed query engine's routing table: most queries
// are ordinary semantic search, but some ask for an enumeration, a
// filtered subset, or an aggregate that only a server-side filterable
// store can answer directly.
type Type string

const (
	TypeSemanticSearch Type = "semantic_search"
	TypeListing        Type = "listing"
	TypeFilteredSearch Type = "filtered_search"
	TypeAggregation    Type = "aggregation"
)

var (
	listingPattern     = regexp.MustCompile(`(?i)^(list|show|enumerate|what are)\b.*\b(all|every)\b`)
	aggregationPattern = regexp.MustCompile(`(?i)\b(how many|count of|total number of|number of)\b`)
	filteredPattern    = regexp.MustCompile(`(?i)\b(from|by|in|tagged|where|filter(ed)? by)\b`)
)

// DetectType classifies a query string by the same regex cascade the
// Qdrant engine uses: aggregation and listing phrasing take priority
// over an ordinary filtered-search hint, and anything left over is
// semantic search.
func DetectType(q string) Type {
	switch {
	case aggregationPattern.MatchString(q):
		return TypeAggregation
	case listingPattern.MatchString(q):
		return TypeListing
	case filteredPattern.MatchString(q):
		return TypeFilteredSearch
	default:
		return TypeSemanticSearch
	}
}

// Result is the outcome of one ProcessQuery call, carrying both the
// generated answer and the evidence it was built from.
type Result struct {
	Query             string           `json:"query"`
	Response          string           `json:"response"`
	ConfidenceScore   float64          `json:"confidence_score"`
	ConfidenceLevel   string           `json:"confidence_level"`
	Sources           []map[string]any `json:"sources"`
	TotalSources      int              `json:"total_sources"`
	QueryType         Type             `json:"query_type"`
	Method            string           `json:"method"`
	Timestamp         time.Time        `json:"timestamp"`
	FiltersApplied    map[string]any   `json:"filters_applied,omitempty"`
	Aggregation       map[string]int   `json:"aggregation,omitempty"`
	Degraded          bool             `json:"degraded,omitempty"`
	DegradedReason    string           `json:"degraded_reason,omitempty"`
}

// Engine answers one processed query against whichever vector backend a
// deployment has configured. TopK bounds how many hits are requested
// from the backend; convContext carries caller-supplied hints (e.g. a
// document-type filter inferred from conversation topic) that a
// FilterableEngine can turn into server-side constraints and a
// DenseEngine ignores.
type Engine interface {
	ProcessQuery(ctx context.Context, query string, topK int, convContext map[string]any) (*Result, error)
}

func confidenceLevel(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

// averageScore computes the mean similarity across hits, 0 for no hits.
func averageScore(scores []float32) float64 {
	if len(scores) == 0 {
		return 0
	}
	var total float64
	for _, s := range scores {
		total += float64(s)
	}
	return total / float64(len(scores))
}

// generateResponse builds the natural-language answer from retrieved
// sources: an LLM call when one is configured, otherwise an extractive
// fallback that quotes the top source directly, so the engine degrades
// gracefully rather than fails when no LLM is wired in.
func generateResponse(ctx context.Context, client llm.Client, query string, sources []map[string]any) (string, string) {
	if len(sources) == 0 {
		return "I couldn't find anything relevant to that in the knowledge base.", "no_sources"
	}
	if client == nil {
		return extractiveResponse(sources), "extractive"
	}
	prompt := buildPrompt(query, sources)
	text, err := client.Generate(ctx, prompt, 512, 0.2)
	if err != nil {
		logger.GetDefault().Warnf("query: llm generate failed, falling back to extractive: %v", err)
		return extractiveResponse(sources), "extractive_fallback"
	}
	return strings.TrimSpace(text), "llm"
}

func buildPrompt(query string, sources []map[string]any) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the context below. If the context does not contain the answer, say so.\n\n")
	for i, src := range sources {
		if i >= 5 {
			break
		}
		text, _ := src["text"].(string)
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, text)
	}
	fmt.Fprintf(&b, "Question: %s\nAnswer:", query)
	return b.String()
}

func extractiveResponse(sources []map[string]any) string {
	text, _ := sources[0]["text"].(string)
	if text == "" {
		return "Relevant content was found but could not be summarized."
	}
	if len(text) > 500 {
		text = text[:500] + "..."
	}
	return text
}

// DenseEngine answers queries against the in-process self-optimizing
// vectorindex.Index. It honors only semantic search: listing and
// aggregation require server-side scan/group support that a classical
// ANN index does not expose, so those query types are returned as a
// degraded Result (Degraded set, Method "degraded") rather than
// simulated with a full scan
// (scanning every vector on every listing query would defeat the
// index's own tiering design).
type DenseEngine struct {
	index    *vectorindex.Index
	embedder embeddings.Embedder
	llm      llm.Client
	log      *logger.Logger
}

func NewDenseEngine(index *vectorindex.Index, embedder embeddings.Embedder, client llm.Client) *DenseEngine {
	return &DenseEngine{index: index, embedder: embedder, llm: client, log: logger.GetDefault()}
}

func (e *DenseEngine) ProcessQuery(ctx context.Context, query string, topK int, convContext map[string]any) (*Result, error) {
	queryType := DetectType(query)
	if queryType == TypeListing || queryType == TypeAggregation {
		return &Result{
			Query:          query,
			Response:       "This deployment's knowledge base does not support listing or aggregate queries. Try asking about a specific topic instead.",
			QueryType:      queryType,
			Method:         "degraded",
			Timestamp:      time.Now(),
			Degraded:       true,
			DegradedReason: "classical vector index has no server-side scan or aggregation support",
		}, nil
	}

	if topK <= 0 {
		topK = 5
	}
	vec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeEmbeddingError, "query embed", err)
	}
	hits, err := e.index.Search(vec, topK, nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "dense search", err)
	}

	sources := make([]map[string]any, 0, len(hits))
	scores := make([]float32, 0, len(hits))
	for _, h := range hits {
		m := h.Payload
		if m == nil {
			m = map[string]any{}
		}
		m["similarity"] = h.Similarity
		sources = append(sources, m)
		scores = append(scores, h.Similarity)
	}

	response, method := generateResponse(ctx, e.llm, query, sources)
	confidence := averageScore(scores)
	return &Result{
		Query:           query,
		Response:        response,
		ConfidenceScore: confidence,
		ConfidenceLevel: confidenceLevel(confidence),
		Sources:         sources,
		TotalSources:    len(sources),
		QueryType:       TypeSemanticSearch,
		Method:          method,
		Timestamp:       time.Now(),
	}, nil
}

var _ Engine = (*DenseEngine)(nil)
