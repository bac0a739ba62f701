// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"context"
	"testing"

	"github.com/northbound/rag-core/internal/query"
)

// fakeEngine is a query.Engine test double that returns a canned set of
// sources for any query, so the conversation graph can be exercised
// without a real vector backend.
type fakeEngine struct {
	sources []map[string]any
	err     error
}

func (f *fakeEngine) ProcessQuery(_ context.Context, q string, _ int, _ map[string]any) (*query.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &query.Result{
		Query:     q,
		Sources:   f.sources,
		QueryType: query.TypeSemanticSearch,
		Method:    "fake",
	}, nil
}

func TestGraph_GreetsOnFirstTurn(t *testing.T) {
	engine := &fakeEngine{}
	nodes := NewNodes(engine, nil)
	graph := NewGraph(ModeAPISingleTurn, NewMemoryCheckpointStore(), nodes)

	state, err := graph.ProcessMessage(context.Background(), "thread-1", "hello there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Messages[0].Role != RoleUser {
		t.Fatal("expected the first message to be the user's")
	}
	if state.UserIntent != "greeting" {
		t.Fatalf("expected greeting intent, got %s", state.UserIntent)
	}
}

func TestGraph_SearchesAndRespondsForQuestion(t *testing.T) {
	engine := &fakeEngine{sources: []map[string]any{
		{"text": "The VPN gateway supports 500 concurrent sessions.", "doc_path": "vpn.md", "similarity": float32(0.9)},
	}}
	nodes := NewNodes(engine, nil)
	graph := NewGraph(ModeAPISingleTurn, NewMemoryCheckpointStore(), nodes)

	state, err := graph.ProcessMessage(context.Background(), "thread-2", "how many concurrent sessions does the VPN gateway support?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(state.SearchResults) == 0 {
		t.Fatal("expected search results to be populated")
	}
	if state.GeneratedResponse == "" {
		t.Fatal("expected a generated response")
	}
	if state.Phase != PhaseEnding {
		t.Fatalf("expected APISingleTurn mode to end the thread, got phase %s", state.Phase)
	}
}

func TestGraph_InteractiveModeReturnsToUnderstanding(t *testing.T) {
	engine := &fakeEngine{sources: []map[string]any{
		{"text": "The office has four conference rooms.", "doc_path": "office.md", "similarity": float32(0.8)},
	}}
	nodes := NewNodes(engine, nil)
	graph := NewGraph(ModeInteractive, NewMemoryCheckpointStore(), nodes)

	state, err := graph.ProcessMessage(context.Background(), "thread-3", "how many conference rooms are there?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Phase != PhaseUnderstanding {
		t.Fatalf("expected interactive mode to leave the thread ready for the next turn, got phase %s", state.Phase)
	}
}

func TestGraph_GoodbyeEndsConversation(t *testing.T) {
	engine := &fakeEngine{}
	nodes := NewNodes(engine, nil)
	graph := NewGraph(ModeInteractive, NewMemoryCheckpointStore(), nodes)

	state, err := graph.ProcessMessage(context.Background(), "thread-4", "goodbye")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Phase != PhaseEnding {
		t.Fatalf("expected goodbye to end the conversation, got phase %s", state.Phase)
	}
}

func TestGraph_ResumesFromCheckpoint(t *testing.T) {
	engine := &fakeEngine{}
	nodes := NewNodes(engine, nil)
	store := NewMemoryCheckpointStore()
	graph := NewGraph(ModeInteractive, store, nodes)

	ctx := context.Background()
	if _, err := graph.ProcessMessage(ctx, "thread-5", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state, err := graph.ProcessMessage(ctx, "thread-5", "what about networking?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.TurnCount != 2 {
		t.Fatalf("expected turn count 2 after resuming from checkpoint, got %d", state.TurnCount)
	}
}
