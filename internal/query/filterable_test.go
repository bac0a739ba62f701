// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package query

import (
	"strings"
	"testing"

	"github.com/northbound/rag-core/internal/filterstore"
)

func TestFilterFromContext_BuildsEqualityConstraint(t *testing.T) {
	f := filterFromContext(map[string]any{"doc_type": "policy"})
	if f == nil || len(f.Constraints) != 1 {
		t.Fatalf("expected one constraint, got %+v", f)
	}
	if f.Constraints[0].Equals != "policy" {
		t.Fatalf("expected equality constraint on policy, got %+v", f.Constraints[0])
	}
}

func TestFilterFromContext_NilWithoutDocType(t *testing.T) {
	if f := filterFromContext(map[string]any{"topic": "networking"}); f != nil {
		t.Fatalf("expected nil filter without a doc_type hint, got %+v", f)
	}
	if f := filterFromContext(nil); f != nil {
		t.Fatal("expected nil filter for nil context")
	}
}

func TestHitsToSources_CarriesSimilarityIntoPayload(t *testing.T) {
	hits := []filterstore.SearchHit{
		{Payload: map[string]any{"text": "alpha"}, Similarity: 0.75},
	}
	sources, scores := hitsToSources(hits)
	if len(sources) != 1 || sources[0]["similarity"] != float32(0.75) {
		t.Fatalf("expected similarity carried into payload, got %+v", sources)
	}
	if len(scores) != 1 || scores[0] != 0.75 {
		t.Fatalf("expected score slice to carry similarity, got %+v", scores)
	}
}

func TestFilteredSearchHintPattern(t *testing.T) {
	m := filterHintPattern.FindStringSubmatch("find documents from compliance")
	if len(m) != 2 || m[1] != "compliance" {
		t.Fatalf("expected to extract 'compliance', got %+v", m)
	}
}

func TestListingConstraint(t *testing.T) {
	tests := []struct {
		query     string
		wantNoun  string
		wantField string
		wantValue any
	}{
		{"list all incidents", "incident", "has_incident", true},
		{"show every change", "change", "doc_type", "change"},
		{"list all problems", "problem", "doc_type", "problem"},
		{"list all tasks", "task", "doc_type", "task"},
	}
	for _, tt := range tests {
		noun, c := listingConstraint(tt.query)
		if noun != tt.wantNoun {
			t.Errorf("%q: noun = %q, want %q", tt.query, noun, tt.wantNoun)
			continue
		}
		if c == nil || c.Field != tt.wantField || c.Equals != tt.wantValue {
			t.Errorf("%q: constraint = %+v, want %s=%v", tt.query, c, tt.wantField, tt.wantValue)
		}
	}

	if noun, c := listingConstraint("list all the things"); noun != "" || c != nil {
		t.Errorf("unrecognized noun should yield no constraint, got %q %+v", noun, c)
	}
}

func TestRenderListing_EnumeratesIncidentsGroupedByFile(t *testing.T) {
	sources := []map[string]any{
		{"doc_path": "tickets_jan.md", "incident_ids": []any{"INC030001", "INC030002"}},
		{"doc_path": "tickets_jan.md", "incident_ids": []any{"INC030002"}}, // dup id, same file
		{"doc_path": "tickets_feb.md", "incident_ids": []string{"INC030003"}},
	}

	got := renderListing("incident", sources, false)

	if !strings.HasPrefix(got, "Found 3 incidents across 2 files:") {
		t.Fatalf("header wrong: %q", got)
	}
	for _, id := range []string{"INC030001", "INC030002", "INC030003"} {
		if strings.Count(got, id) != 1 {
			t.Errorf("id %s enumerated %d times, want once: %q", id, strings.Count(got, id), got)
		}
	}
	if !strings.Contains(got, "tickets_jan.md: INC030001, INC030002") {
		t.Errorf("january ids not grouped under their file: %q", got)
	}
	if !strings.Contains(got, "tickets_feb.md: INC030003") {
		t.Errorf("february id not grouped under its file: %q", got)
	}
}

func TestRenderListing_PlainDocumentsAndEmpty(t *testing.T) {
	sources := []map[string]any{
		{"doc_path": "a.md"},
		{"doc_path": "a.md"},
		{"filename": "b.md"},
	}
	got := renderListing("", sources, false)
	if !strings.HasPrefix(got, "Found 3 matching documents across 2 files:") {
		t.Fatalf("header wrong: %q", got)
	}
	if !strings.Contains(got, "a.md (2 chunks)") || !strings.Contains(got, "b.md (1 chunks)") {
		t.Errorf("per-file chunk counts missing: %q", got)
	}

	if got := renderListing("incident", nil, false); got != "No incidents found." {
		t.Errorf("empty incident listing = %q", got)
	}
	if got := renderListing("", nil, false); got != "No matching documents found." {
		t.Errorf("empty listing = %q", got)
	}
}

func TestStringList(t *testing.T) {
	if got := stringList([]any{"a", 3, "b"}); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("[]any conversion = %v", got)
	}
	if got := stringList([]string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("[]string passthrough = %v", got)
	}
	if got := stringList(nil); got != nil {
		t.Errorf("nil input = %v", got)
	}
}
