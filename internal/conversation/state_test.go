// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import "testing"

func TestNewState_StartsInGreeting(t *testing.T) {
	s := NewState("")
	if s.Phase != PhaseGreeting {
		t.Fatalf("expected PhaseGreeting, got %s", s.Phase)
	}
	if s.ThreadID == "" {
		t.Fatal("expected a generated thread id")
	}
}

func TestAddMessage_IncrementsTurnCountOnUserOnly(t *testing.T) {
	s := NewState("t1")
	s.AddMessage(RoleUser, "hello")
	s.AddMessage(RoleAssistant, "hi there")
	if s.TurnCount != 1 {
		t.Fatalf("expected turn count 1, got %d", s.TurnCount)
	}
}

func TestAddMessage_PrunesHistoryBeyondLimit(t *testing.T) {
	s := NewState("t1")
	for i := 0; i < MaxConversationHistory+10; i++ {
		s.AddMessage(RoleUser, "msg")
	}
	if len(s.Messages) != MaxConversationHistory {
		t.Fatalf("expected history capped at %d, got %d", MaxConversationHistory, len(s.Messages))
	}
}

func TestGetRelevantHistory_CapsAndOrdersMostRecentFirst(t *testing.T) {
	s := NewState("t1")
	for i := 0; i < MaxRelevantHistory+5; i++ {
		s.AddMessage(RoleUser, "q")
		s.AddMessage(RoleAssistant, "a")
	}
	hist := s.GetRelevantHistory()
	if len(hist) != MaxRelevantHistory {
		t.Fatalf("expected %d entries, got %d", MaxRelevantHistory, len(hist))
	}
}

func TestShouldEnd_OnTurnBudget(t *testing.T) {
	s := NewState("t1")
	s.TurnCount = MaxTurnCount + 1
	if !s.ShouldEnd() {
		t.Fatal("expected ShouldEnd true once turn budget exceeded")
	}
}

func TestShouldEnd_OnRetryBudget(t *testing.T) {
	s := NewState("t1")
	s.RetryCount = MaxRetryCount + 1
	if !s.ShouldEnd() {
		t.Fatal("expected ShouldEnd true once retry budget exceeded")
	}
}

func TestCalculateContextQuality_PoisonedDominates(t *testing.T) {
	s := NewState("t1")
	s.ContextSegments = []ContextSegment{
		{CompositeScore: 0.9, Quality: QualityHigh},
		{CompositeScore: 0.0, Quality: QualityPoisoned},
	}
	if q := s.CalculateContextQuality(); q != QualityPoisoned {
		t.Fatalf("expected QualityPoisoned, got %s", q)
	}
}

func TestAddTopicEntity_RecencyOrderAndBound(t *testing.T) {
	s := NewState("t")
	s.AddTopicEntity("Building A")
	s.AddTopicEntity("Cisco 9120")
	s.AddTopicEntity("building a") // re-mention moves to most-recent, no duplicate

	if len(s.TopicEntities) != 2 {
		t.Fatalf("entities = %v, want 2 distinct", s.TopicEntities)
	}
	if s.TopicEntities[len(s.TopicEntities)-1] != "building a" {
		t.Errorf("re-mentioned entity not moved to most-recent: %v", s.TopicEntities)
	}

	for i := 0; i < MaxTopicEntities+5; i++ {
		s.AddTopicEntity("Floor " + string(rune('A'+i)))
	}
	if len(s.TopicEntities) > MaxTopicEntities {
		t.Errorf("entity list unbounded: %d entries", len(s.TopicEntities))
	}
}

func TestAddTopic_DeduplicatesConsecutiveRepeats(t *testing.T) {
	s := NewState("t1")
	s.AddTopic("networking")
	s.AddTopic("networking")
	if len(s.TopicsDiscussed) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(s.TopicsDiscussed))
	}
}
