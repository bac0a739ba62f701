// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"context"
	"strings"
	"testing"
)

func TestIsContextualQuery_AnaphoricPrefix(t *testing.T) {
	nodes := NewNodes(&fakeEngine{}, nil)
	state := NewState("t")
	state.AddMessage(RoleUser, "What access points does Building A have?")

	tests := []struct {
		message string
		want    bool
	}{
		{"Tell me more about that", true}, // 5 tokens, prefix match
		{"for floor 3", true},
		{"those ones please", true},
		{"What access points does Building B have?", false},
	}
	for _, tt := range tests {
		if got := nodes.isContextualQuery(tt.message, state); got != tt.want {
			t.Errorf("isContextualQuery(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestBuildContextualQuery_AppendsRememberedEntity(t *testing.T) {
	nodes := NewNodes(&fakeEngine{}, nil)
	state := NewState("t")
	state.AddTopicEntity("Building A")

	got := nodes.buildContextualQuery("Tell me more about that", state)
	if !strings.Contains(got, "Building A") {
		t.Errorf("enriched query %q does not carry the remembered entity", got)
	}
}

func TestBuildContextualQuery_SkipsEntityAlreadyNamed(t *testing.T) {
	nodes := NewNodes(&fakeEngine{}, nil)
	state := NewState("t")
	state.AddTopicEntity("Building A")

	got := nodes.buildContextualQuery("what about building a", state)
	if strings.Count(strings.ToLower(got), "building a") != 1 {
		t.Errorf("entity appended despite already being named: %q", got)
	}
}

func TestExtractEntities(t *testing.T) {
	got := extractEntities("Building A has Cisco 9120 access points on floor 3 near Building A")
	want := []string{"Building A", "Cisco 9120", "Floor 3"}
	if len(got) != len(want) {
		t.Fatalf("entities = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entity[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDeriveTopic_PrefersEntityOverWordPrefix(t *testing.T) {
	state := NewState("t")
	state.OriginalQuery = "What access points does Building A have?"
	state.ProcessedQuery = state.OriginalQuery

	if got := deriveTopic(state); got != "Building A" {
		t.Errorf("deriveTopic = %q, want %q", got, "Building A")
	}
}

func TestDeriveTopic_WordPrefixOnlyAsLastResort(t *testing.T) {
	state := NewState("t")
	state.OriginalQuery = "summarize the onboarding process for new staff"
	state.ProcessedQuery = state.OriginalQuery

	if got := deriveTopic(state); got != "summarize the onboarding process" {
		t.Errorf("deriveTopic = %q", got)
	}
}

func TestGraph_ContextualFollowUpCarriesEntity(t *testing.T) {
	engine := &fakeEngine{sources: []map[string]any{
		{"text": "Building A has 12 Cisco 9120 access points.", "doc_path": "network.md", "similarity": float32(0.9)},
	}}
	nodes := NewNodes(engine, nil)
	graph := NewGraph(ModeInteractive, NewMemoryCheckpointStore(), nodes)

	ctx := context.Background()
	state, err := graph.ProcessMessage(ctx, "thread-ent", "What access points does Building A have?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.TopicEntities) == 0 {
		t.Fatal("expected the entity from the first question to be tracked")
	}

	state, err = graph.ProcessMessage(ctx, "thread-ent", "Tell me more about that")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.IsContextual {
		t.Fatal("expected the follow-up to be detected as contextual")
	}
	if !strings.Contains(state.ProcessedQuery, "Building A") {
		t.Fatalf("processed query %q not enriched with the remembered entity", state.ProcessedQuery)
	}
	if state.GeneratedResponse == "" {
		t.Fatal("expected a response on the follow-up turn")
	}
	if state.TurnCount != 2 {
		t.Fatalf("turn count = %d, want 2", state.TurnCount)
	}
}
