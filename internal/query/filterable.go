// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/embeddings"
	"github.com/northbound/rag-core/internal/filterstore"
	"github.com/northbound/rag-core/internal/llm"
	"github.com/northbound/rag-core/internal/logger"
)

// maxScrollPages bounds how many Scroll pages a single listing query will
// walk, so an unfiltered "list everything" question against a very large
// collection degrades to a capped sample instead of streaming the whole
// store into one response.
const (
	maxScrollPages = 5
	scrollPageSize = 50
)

var filterHintPattern = regexp.MustCompile(`(?i)\b(?:from|by|in|tagged|filtered? by)\s+([a-z0-9_-]+)`)

// FilterableEngine answers queries against the Qdrant-backed
// filterstore.Store, which, unlike the classical index, can scroll the
// full collection and aggregate by doc_type server-side. It is the only
// Engine that can honor listing, filtered_search, and aggregation query
// types.
type FilterableEngine struct {
	store    *filterstore.Store
	embedder embeddings.Embedder
	llm      llm.Client
	log      *logger.Logger
}

func NewFilterableEngine(store *filterstore.Store, embedder embeddings.Embedder, client llm.Client) *FilterableEngine {
	return &FilterableEngine{store: store, embedder: embedder, llm: client, log: logger.GetDefault()}
}

func (e *FilterableEngine) ProcessQuery(ctx context.Context, query string, topK int, convContext map[string]any) (*Result, error) {
	if topK <= 0 {
		topK = 5
	}
	switch DetectType(query) {
	case TypeAggregation:
		return e.aggregate(ctx, query)
	case TypeListing:
		return e.list(ctx, query, convContext)
	case TypeFilteredSearch:
		return e.filteredSearch(ctx, query, topK, convContext)
	default:
		return e.semanticSearch(ctx, query, topK, convContext)
	}
}

func (e *FilterableEngine) semanticSearch(ctx context.Context, query string, topK int, convContext map[string]any) (*Result, error) {
	vec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeEmbeddingError, "query embed", err)
	}
	filter := filterFromContext(convContext)
	hits, err := e.store.Search(ctx, vec, topK, filter)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "filterable search", err)
	}
	sources, scores := hitsToSources(hits)
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

// filteredSearch extracts a "from X" / "tagged X" hint from the query
// text, turns it into a server-side constraint, and narrows the
// semantic search to matching documents.
func (e *FilterableEngine) filteredSearch(ctx context.Context, query string, topK int, convContext map[string]any) (*Result, error) {
	filter := filterFromContext(convContext)
	var appliedHint map[string]any
	if m := filterHintPattern.FindStringSubmatch(query); len(m) == 2 {
		hint := m[1]
		if filter == nil {
			filter = &filterstore.Filter{}
		}
		filter.Constraints = append(filter.Constraints, filterstore.TextContains("doc_type", hint))
		appliedHint = map[string]any{"doc_type_contains": hint}
	}

	vec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeEmbeddingError, "query embed", err)
	}
	hits, err := e.store.Search(ctx, vec, topK, filter)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "filtered search", err)
	}
	sources, scores := hitsToSources(hits)
	response, method := generateResponse(ctx, e.llm, query, sources)
	confidence := averageScore(scores)
	return &Result{
		Query:           query,
		Response:        response,
		ConfidenceScore: confidence,
		ConfidenceLevel: confidenceLevel(confidence),
		Sources:         sources,
		TotalSources:    len(sources),
		QueryType:       TypeFilteredSearch,
		Method:          method,
		Timestamp:       time.Now(),
		FiltersApplied:  appliedHint,
	}, nil
}

// listingNounPattern picks out what kind of thing a listing query asks
// for ("list all incidents", "show every change request"), so the scroll
// can be constrained server-side instead of walking the whole collection.
var listingNounPattern = regexp.MustCompile(`(?i)\b(incidents?|change requests?|changes?|problems?|requests?|tasks?)\b`)

// listingConstraint maps the listing noun onto the payload fields the
// store's write-time enrichment maintains: incidents match on
// has_incident (a chunk mentioning INC ids counts whatever its doc_type
// classified as), everything else on doc_type. A query with no
// recognized noun gets no constraint and lists everything.
func listingConstraint(query string) (noun string, c *filterstore.Constraint) {
	m := listingNounPattern.FindStringSubmatch(query)
	if len(m) != 2 {
		return "", nil
	}
	noun = strings.ToLower(strings.TrimSuffix(m[1], "s"))
	switch noun {
	case "incident":
		eq := filterstore.Eq("has_incident", true)
		return "incident", &eq
	case "change", "change request":
		eq := filterstore.Eq("doc_type", "change")
		return "change", &eq
	case "problem":
		eq := filterstore.Eq("doc_type", "problem")
		return "problem", &eq
	case "request":
		eq := filterstore.Eq("doc_type", "request")
		return "request", &eq
	case "task":
		eq := filterstore.Eq("doc_type", "task")
		return "task", &eq
	}
	return "", nil
}

// list walks Scroll pages to enumerate matching documents, up to
// maxScrollPages, rather than answering from a single ranked search, a
// listing intent asks "what is there", not "what is most similar". The
// listing noun becomes a server-side constraint so "list all incidents"
// scrolls only incident-bearing chunks.
func (e *FilterableEngine) list(ctx context.Context, query string, convContext map[string]any) (*Result, error) {
	filter := filterFromContext(convContext)
	noun, constraint := listingConstraint(query)
	var applied map[string]any
	if constraint != nil {
		if filter == nil {
			filter = &filterstore.Filter{}
		}
		filter.Constraints = append(filter.Constraints, *constraint)
		applied = map[string]any{constraint.Field: constraint.Equals}
	}

	var sources []map[string]any
	var cursor *qdrant.PointId
	for page := 0; page < maxScrollPages; page++ {
		sp, err := e.store.Scroll(ctx, filter, cursor, scrollPageSize)
		if err != nil {
			return nil, apierr.Wrap(apierr.CodeVectorStoreError, "listing scroll", err)
		}
		sources = append(sources, sp.Hits...)
		if sp.Cursor == nil {
			break
		}
		cursor = sp.Cursor
	}

	capped := len(sources) == scrollPageSize*maxScrollPages
	return &Result{
		Query:           query,
		Response:        renderListing(noun, sources, capped),
		ConfidenceScore: 1.0,
		ConfidenceLevel: "high",
		Sources:         sources,
		TotalSources:    len(sources),
		QueryType:       TypeListing,
		Method:          "scroll",
		Timestamp:       time.Now(),
		FiltersApplied:  applied,
	}, nil
}

// renderListing enumerates what the scroll found, grouped by source
// file. Incident listings enumerate the extracted incident ids per file;
// other listings report chunk counts per file.
func renderListing(noun string, sources []map[string]any, capped bool) string {
	if len(sources) == 0 {
		if noun != "" {
			return fmt.Sprintf("No %ss found.", noun)
		}
		return "No matching documents found."
	}

	var order []string
	perFile := make(map[string][]string)
	seenPerFile := make(map[string]map[string]bool)
	totalIDs := 0

	for _, src := range sources {
		file := sourceFileLabel(src)
		if _, ok := perFile[file]; !ok {
			order = append(order, file)
			perFile[file] = nil
			seenPerFile[file] = make(map[string]bool)
		}
		if noun == "incident" {
			for _, id := range stringList(src["incident_ids"]) {
				if !seenPerFile[file][id] {
					seenPerFile[file][id] = true
					perFile[file] = append(perFile[file], id)
					totalIDs++
				}
			}
		}
	}

	var b strings.Builder
	if noun == "incident" {
		fmt.Fprintf(&b, "Found %d incidents across %d files:", totalIDs, len(order))
		for _, file := range order {
			fmt.Fprintf(&b, "\n- %s: %s", file, strings.Join(perFile[file], ", "))
		}
	} else {
		subject := "matching documents"
		if noun != "" {
			subject = noun + " documents"
		}
		fmt.Fprintf(&b, "Found %d %s across %d files:", len(sources), subject, len(order))
		counts := make(map[string]int)
		for _, src := range sources {
			counts[sourceFileLabel(src)]++
		}
		for _, file := range order {
			fmt.Fprintf(&b, "\n- %s (%d chunks)", file, counts[file])
		}
	}
	if capped {
		b.WriteString("\nThis list was capped and may not be exhaustive.")
	}
	return b.String()
}

// sourceFileLabel names the file a payload came from, in the same
// doc_path > filename > file_path priority the ingestion layer uses.
func sourceFileLabel(src map[string]any) string {
	for _, key := range []string{"doc_path", "filename", "file_path"} {
		if v, ok := src[key].(string); ok && v != "" {
			return v
		}
	}
	return "unknown source"
}

// stringList flattens the incident_ids payload value, which decodes as
// []any of strings from the store but may be []string when constructed
// in-process.
func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (e *FilterableEngine) aggregate(ctx context.Context, query string) (*Result, error) {
	counts, err := e.store.AggregateByDocType(ctx)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "aggregation", err)
	}
	total := 0
	parts := make([]string, 0, len(counts))
	for docType, n := range counts {
		total += n
		parts = append(parts, fmt.Sprintf("%s: %d", docType, n))
	}
	response := fmt.Sprintf("%d documents across %d types (%s).", total, len(counts), strings.Join(parts, ", "))
	return &Result{
		Query:           query,
		Response:        response,
		ConfidenceScore: 1.0,
		ConfidenceLevel: "high",
		QueryType:       TypeAggregation,
		Method:          "aggregate",
		Timestamp:       time.Now(),
		Aggregation:     counts,
	}, nil
}

func hitsToSources(hits []filterstore.SearchHit) ([]map[string]any, []float32) {
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
	return sources, scores
}

// filterFromContext lifts a conversation-supplied doc_type hint (set by
// the conversation layer when it tracked a topic entity) into a
// server-side constraint.
func filterFromContext(convContext map[string]any) *filterstore.Filter {
	if convContext == nil {
		return nil
	}
	docType, ok := convContext["doc_type"].(string)
	if !ok || docType == "" {
		return nil
	}
	return &filterstore.Filter{Constraints: []filterstore.Constraint{filterstore.Eq("doc_type", docType)}}
}

var _ Engine = (*FilterableEngine)(nil)
