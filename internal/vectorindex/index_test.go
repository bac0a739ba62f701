// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"path/filepath"
	"testing"
)

func testVec(dim int, lead float32) []float32 {
	v := make([]float32, dim)
	v[0] = lead
	for i := 1; i < dim; i++ {
		v[i] = 0.01
	}
	return v
}

func TestAddVectors_RejectsDimensionMismatch(t *testing.T) {
	idx := NewIndex(4, DefaultConfig())
	_, err := idx.AddVectors([][]float32{{1, 2}}, []map[string]any{{"text": "x"}})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestAddVectors_RejectsEmptyInput(t *testing.T) {
	idx := NewIndex(4, DefaultConfig())
	if _, err := idx.AddVectors(nil, nil); err == nil {
		t.Fatal("expected error on empty input")
	}
}

func TestAddVectors_AssignsIDsAndSearchReturnsNearest(t *testing.T) {
	idx := NewIndex(8, DefaultConfig())
	vectors := [][]float32{
		testVec(8, 1.0),
		testVec(8, 0.5),
		testVec(8, -1.0),
	}
	metas := []map[string]any{
		{"text": "alpha", "doc_id": "d1"},
		{"text": "beta", "doc_id": "d2"},
		{"text": "gamma", "doc_id": "d3"},
	}
	ids, err := idx.AddVectors(vectors, metas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}

	hits, err := idx.Search(testVec(8, 1.0), 2, nil)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if hits[0].Payload["doc_id"] != "d1" {
		t.Fatalf("expected nearest hit to be d1, got %v", hits[0].Payload["doc_id"])
	}
}

func TestSearch_FiltersDeletedAndAppliesAttributeFilter(t *testing.T) {
	idx := NewIndex(4, DefaultConfig())
	ids, _ := idx.AddVectors([][]float32{
		testVec(4, 1.0),
		testVec(4, 0.9),
	}, []map[string]any{
		{"text": "a", "doc_id": "d1", "tag": "keep"},
		{"text": "b", "doc_id": "d2", "tag": "drop"},
	})

	if err := idx.DeleteVectors([]string{ids[1]}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	hits, err := idx.Search(testVec(4, 1.0), 5, nil)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	for _, h := range hits {
		if h.Payload["doc_id"] == "d2" {
			t.Fatal("deleted vector should not appear in search results")
		}
	}

	filtered, err := idx.Search(testVec(4, 1.0), 5, map[string]any{"tag": "keep"})
	if err != nil {
		t.Fatalf("filtered search error: %v", err)
	}
	for _, h := range filtered {
		if h.Payload["tag"] != "keep" {
			t.Fatal("filter should only return matching tag")
		}
	}
}

func TestSearchWithMetadata_NeverEmitsNestedMetadataKey(t *testing.T) {
	idx := NewIndex(4, DefaultConfig())
	idx.AddVectors([][]float32{testVec(4, 1.0)}, []map[string]any{
		{"text": "hello", "doc_id": "d1", "chunk_index": 0},
	})

	results, err := idx.SearchWithMetadata(testVec(4, 1.0), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	rec := results[0]
	if _, present := rec["metadata"]; present {
		t.Fatal("must never emit a nested metadata key")
	}
	if rec["content"] != rec["text"] {
		t.Fatal("content must alias text")
	}
	if rec["score"] != rec["similarity_score"] {
		t.Fatal("score must alias similarity_score")
	}
}

func TestDeleteVectors_TriggersSoftRebuildPastThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SoftRebuildDeletedFraction = 0.2
	idx := NewIndex(4, cfg)

	var ids []string
	for i := 0; i < 10; i++ {
		added, _ := idx.AddVectors([][]float32{testVec(4, float32(i))}, []map[string]any{
			{"text": "t", "doc_id": "d"},
		})
		ids = append(ids, added...)
	}

	if err := idx.DeleteVectors(ids[:3]); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if idx.Len() != 7 {
		t.Fatalf("expected 7 live vectors after rebuild, got %d", idx.Len())
	}
}

func TestFindAndDeleteVectorsByDocPath(t *testing.T) {
	idx := NewIndex(4, DefaultConfig())
	idx.AddVectors([][]float32{testVec(4, 1), testVec(4, 2)}, []map[string]any{
		{"text": "a", "doc_path": "/docs/report.pdf"},
		{"text": "b", "doc_path": "/docs/other.pdf"},
	})

	ids := idx.FindVectorsByDocPath("/docs/report.pdf")
	if len(ids) != 1 {
		t.Fatalf("expected 1 vector for path, got %d", len(ids))
	}

	if err := idx.DeleteVectorsByDocPath("/docs/report.pdf"); err != nil {
		t.Fatalf("delete by path failed: %v", err)
	}
	if len(idx.FindVectorsByDocPath("/docs/report.pdf")) != 0 {
		t.Fatal("expected no live vectors left for deleted path")
	}
}

func TestClear_ResetsToEmptyFlatIndex(t *testing.T) {
	idx := NewIndex(4, DefaultConfig())
	idx.AddVectors([][]float32{testVec(4, 1)}, []map[string]any{{"text": "a"}})
	idx.Clear()
	if idx.Len() != 0 {
		t.Fatal("expected empty index after clear")
	}
	if idx.CurrentTier() != TierFlat {
		t.Fatalf("expected flat tier after clear, got %s", idx.CurrentTier())
	}
}

func TestSelectTier_MatchesPopulationThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		population int
		want       Tier
	}{
		{0, TierFlat},
		{9_999, TierFlat},
		{10_000, TierInvertedList},
		{99_999, TierInvertedList},
		{100_000, TierGraph},
		{999_999, TierGraph},
		{1_000_000, TierInvertedPQ},
	}
	for _, c := range cases {
		if got := SelectTier(c.population, cfg); got != c.want {
			t.Errorf("SelectTier(%d) = %s, want %s", c.population, got, c.want)
		}
	}
}

func TestSaveAndLoadAtomic_RoundTripsVectorsAndPayload(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "vectors.idx")
	payloadPath := filepath.Join(dir, "vectors.payload")

	idx := NewIndex(4, DefaultConfig())
	idx.AddVectors([][]float32{testVec(4, 1), testVec(4, -1)}, []map[string]any{
		{"text": "alpha", "doc_id": "d1"},
		{"text": "beta", "doc_id": "d2"},
	})

	if err := idx.SaveAtomic(indexPath, payloadPath); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := LoadAtomic(indexPath, payloadPath)
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 vectors after load, got %d", loaded.Len())
	}

	hits, err := loaded.Search(testVec(4, 1), 1, nil)
	if err != nil {
		t.Fatalf("search after load failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Payload["doc_id"] != "d1" {
		t.Fatal("expected nearest neighbor to survive save/load round trip")
	}
}

func TestLoadAtomic_MissingFilesStartFreshWithoutError(t *testing.T) {
	dir := t.TempDir()
	idx := LoadAtomic(filepath.Join(dir, "missing.idx"), filepath.Join(dir, "missing.payload"))
	if idx.Len() != 0 {
		t.Fatal("expected empty index when no files exist")
	}
}

func TestForceRebuildForNewDimension_WipesIndex(t *testing.T) {
	idx := NewIndex(4, DefaultConfig())
	idx.AddVectors([][]float32{testVec(4, 1)}, []map[string]any{{"text": "a"}})
	idx.ForceRebuildForNewDimension(8)
	if idx.Dim() != 8 {
		t.Fatalf("expected new dimension 8, got %d", idx.Dim())
	}
	if idx.Len() != 0 {
		t.Fatal("expected empty index after forced dimension rebuild")
	}
}
