// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"context"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/logger"
)

// Mode selects what happens to a thread once a turn finishes responding.
// The graph itself never loops within a single ProcessMessage call;
// a turn is not cancellable mid-flight and always runs
// understanding -> (searching -> responding|clarifying) -> end-check
// exactly once. Mode only decides what the end-check leaves behind for
// the *next* external call.
type Mode string

const (
	// ModeAPISingleTurn ends the thread after every response, matching a
	// stateless request/response API: a second ProcessMessage call with
	// the same thread id starts a fresh conversation.
	ModeAPISingleTurn Mode = "api_single_turn"
	// ModeInteractive leaves the thread in PhaseUnderstanding after a
	// response (unless a hard stop condition fired), so the next call
	// continues the same conversation and accumulated context.
	ModeInteractive Mode = "interactive"
)

// Graph drives one conversation thread's state machine: the transition
// table is greeting -> understanding -> {searching | responding | end},
// searching -> {responding | clarifying}, responding -> end-check,
// clarifying -> understanding. Each transition is checkpointed before
// Graph returns, so a crash between turns loses at most the in-flight
// turn, never prior ones.
type Graph struct {
	mode        Mode
	checkpoints CheckpointStore
	nodes       *Nodes
	log         *logger.Logger
}

// NewGraph builds a Graph over the given checkpoint store and node set.
func NewGraph(mode Mode, checkpoints CheckpointStore, nodes *Nodes) *Graph {
	return &Graph{mode: mode, checkpoints: checkpoints, nodes: nodes, log: logger.GetDefault()}
}

// ProcessMessage advances threadID's state machine by exactly one user
// turn and returns the resulting state. If threadID has no checkpoint
// yet, a fresh thread is created and the greeting node runs first.
func (g *Graph) ProcessMessage(ctx context.Context, threadID, userMessage string) (*State, error) {
	state, found, err := g.checkpoints.Get(ctx, threadID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeConversationError, "graph checkpoint load", err)
	}
	if !found {
		state = NewState(threadID)
	}
	state.ensureMaps()
	if state.Phase == PhaseEnding {
		// A prior turn ended this thread (API single-turn mode, an
		// explicit goodbye, or a budget exhaustion): start over rather
		// than resurrect a terminated conversation under the same id.
		state = NewState(threadID)
	}

	state.AddMessage(RoleUser, userMessage)

	if state.TurnCount <= 1 {
		g.nodes.Greet(state)
	}

	g.nodes.UnderstandIntent(state, userMessage)

	switch g.routeAfterUnderstanding(state) {
	case "end":
		state.Phase = PhaseEnding
		g.nodes.GenerateResponse(ctx, state)
	case "respond":
		g.nodes.GenerateResponse(ctx, state)
	case "search":
		if err := g.nodes.SearchKnowledge(ctx, state); err != nil {
			state.RecordError("search", err.Error())
		}
		if g.routeAfterSearch(state) == "clarify" {
			g.nodes.HandleClarification(state)
		} else {
			g.nodes.GenerateResponse(ctx, state)
		}
	}

	if state.Phase != PhaseEnding && state.Phase != PhaseClarifying {
		g.nodes.CheckConversationEnd(state, g.mode)
	}

	if state.GeneratedResponse != "" {
		state.AddMessage(RoleAssistant, state.GeneratedResponse)
	}

	if err := g.checkpoints.Put(ctx, state); err != nil {
		g.log.Errorf("graph: checkpoint persist failed for %s: %v", threadID, err)
		return state, apierr.Wrap(apierr.CodeConversationError, "graph checkpoint persist", err)
	}
	return state, nil
}

// routeAfterUnderstanding picks the edge leaving the understanding node.
func (g *Graph) routeAfterUnderstanding(state *State) string {
	switch state.UserIntent {
	case "goodbye":
		return "end"
	case "greeting", "help":
		return "respond"
	default:
		return "search"
	}
}

// routeAfterSearch picks the edge leaving the searching node: a
// contextual query with no results at all is ambiguous enough to ask
// the user to clarify rather than hand back an empty answer.
func (g *Graph) routeAfterSearch(state *State) string {
	if len(state.SearchResults) == 0 && state.IsContextual {
		return "clarify"
	}
	return "respond"
}
