// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import "testing"

func TestResolve_MergesNonConflictingAttempts(t *testing.T) {
	r := NewConflictResolver()
	state := NewState("t1")
	attempts := []SearchAttempt{
		{Strategy: "enhanced_query", Results: []SearchResult{
			{Content: "The VPN gateway supports up to 500 concurrent sessions.", Score: 0.9, Source: "doc1"},
		}},
		{Strategy: "topic_entity", Results: []SearchResult{
			{Content: "Backup links failover within 30 seconds of a primary outage.", Score: 0.8, Source: "doc2"},
		}},
	}
	merged := r.Resolve(attempts, state)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged results, got %d", len(merged))
	}
	if merged[0].Score < merged[1].Score {
		t.Fatal("expected results ranked by descending score")
	}
}

func TestResolve_DedupesIdenticalContentAcrossAttempts(t *testing.T) {
	r := NewConflictResolver()
	state := NewState("t1")
	attempts := []SearchAttempt{
		{Strategy: "enhanced_query", Results: []SearchResult{
			{Content: "The office has 4 conference rooms.", Score: 0.7, Source: "doc1"},
		}},
		{Strategy: "original_query", Results: []SearchResult{
			{Content: "The office has 4 conference rooms.", Score: 0.9, Source: "doc1-dup"},
		}},
	}
	merged := r.Resolve(attempts, state)
	if len(merged) != 1 {
		t.Fatalf("expected dedup to a single result, got %d", len(merged))
	}
	if merged[0].Score != 0.9 {
		t.Fatalf("expected the higher-scoring duplicate to survive, got %f", merged[0].Score)
	}
}

func TestResolve_BoostsOfficialSourceOnConflict(t *testing.T) {
	r := NewConflictResolver()
	state := NewState("t1")
	attempts := []SearchAttempt{
		{Strategy: "enhanced_query", Results: []SearchResult{
			{Content: "The office has 12 conference rooms available.", Score: 0.8, Source: "official-directory"},
			{Content: "The office has 3 conference rooms available.", Score: 0.85, Source: "old-wiki-page"},
		}},
	}
	merged := r.Resolve(attempts, state)
	if len(state.ContextConflicts) == 0 {
		t.Fatal("expected a numeric conflict to be recorded")
	}
	var official, wiki *SearchResult
	for i := range merged {
		switch merged[i].Source {
		case "official-directory":
			official = &merged[i]
		case "old-wiki-page":
			wiki = &merged[i]
		}
	}
	if official == nil || wiki == nil {
		t.Fatal("expected both conflicting sources to survive in the merged set")
	}
	if wiki.Score >= 0.85 {
		t.Fatal("expected the non-official source's score to be down-weighted after conflict resolution")
	}
}

func TestResolve_CapsAtTenResults(t *testing.T) {
	r := NewConflictResolver()
	state := NewState("t1")
	var results []SearchResult
	for i := 0; i < 15; i++ {
		results = append(results, SearchResult{
			Content: string(rune('a'+i)) + " unique content block describing topic " + string(rune('A'+i)),
			Score:   float64(i) / 15,
			Source:  "doc",
		})
	}
	merged := r.Resolve([]SearchAttempt{{Strategy: "s", Results: results}}, state)
	if len(merged) != 10 {
		t.Fatalf("expected merged results capped at 10, got %d", len(merged))
	}
}
