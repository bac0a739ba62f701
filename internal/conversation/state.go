// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Phase is one node of the conversation's transition table.
type Phase string

const (
	PhaseGreeting      Phase = "greeting"
	PhaseUnderstanding Phase = "understanding"
	PhaseSearching     Phase = "searching"
	PhaseResponding    Phase = "responding"
	PhaseClarifying    Phase = "clarifying"
	PhaseValidating    Phase = "validating"
	PhaseEnding        Phase = "ending"
)

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// Quality buckets a ContextSegment's trustworthiness after scoring.
type Quality string

const (
	QualityHigh       Quality = "high"
	QualityMedium     Quality = "medium"
	QualityLow        Quality = "low"
	QualityConflicted Quality = "conflicted"
	QualityPoisoned   Quality = "poisoned"
)

// Bounds on unbounded growth within a single thread. A conversation that
// never ends would otherwise accumulate history, topics, and errors
// without limit.
const (
	MaxConversationHistory = 20
	MaxRelevantHistory     = 6
	MaxTopicsDiscussed     = 10
	MaxTopicEntities       = 10
	MaxErrorMessages       = 5
	MaxContextChunks       = 4000
	ContextQualityThreshold = 0.7
	MaxTurnCount           = 20
	MaxRetryCount          = 3
)

// Message is one turn of the conversation, user or assistant side.
type Message struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	Confidence    float64   `json:"confidence,omitempty"`
	Validated     bool      `json:"validated,omitempty"`
	QualityScore  float64   `json:"quality_score,omitempty"`
	ConflictsWith []string  `json:"conflicts_with,omitempty"`
}

// SearchResult is one hit surfaced by the query engine, carried alongside
// the strategy that produced it so the conflict resolver can reason about
// provenance.
type SearchResult struct {
	Content      string         `json:"content"`
	Score        float64        `json:"score"`
	Source       string         `json:"source"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	StrategyUsed string         `json:"strategy_used,omitempty"`
	Confidence   float64        `json:"confidence,omitempty"`
	Validated    bool           `json:"validated,omitempty"`
	Conflicts    []string       `json:"conflicts,omitempty"`
}

// ContextSegment is one scored, purpose-tagged unit of text the context
// manager considered for assembly into a prompt.
type ContextSegment struct {
	Content        string    `json:"content"`
	Source         string    `json:"source"` // conversation | search | system
	Relevance      float64   `json:"relevance"`
	Quality        Quality   `json:"quality"`
	Timestamp      time.Time `json:"timestamp"`
	TokenEstimate  int       `json:"token_estimate"`
	CompositeScore float64   `json:"composite_score"`
	contentHash    string
}

// State is the full working memory of one conversation thread: the
// conversation state, carried end to end through every node and
// persisted by the checkpoint store after each transition.
type State struct {
	ThreadID       string    `json:"thread_id"`
	ConversationID string    `json:"conversation_id"`
	Phase          Phase     `json:"phase"`
	Messages       []Message `json:"messages"`

	UserIntent      string  `json:"user_intent"`
	ConfidenceScore float64 `json:"confidence_score"`

	OriginalQuery  string   `json:"original_query"`
	ProcessedQuery string   `json:"processed_query"`
	QueryKeywords  []string `json:"query_keywords,omitempty"`
	IsContextual   bool     `json:"is_contextual"`

	CurrentTopic    string   `json:"current_topic,omitempty"`
	TopicEntities   []string `json:"topic_entities,omitempty"`
	TopicsDiscussed []string `json:"topics_discussed,omitempty"`

	SearchResults    []SearchResult   `json:"search_results,omitempty"`
	RelevantSources  []map[string]any `json:"relevant_sources,omitempty"`
	ContextChunks    []string         `json:"context_chunks,omitempty"`
	ContextSegments  []ContextSegment `json:"context_segments,omitempty"`
	ContextQuality   Quality          `json:"context_quality,omitempty"`
	ContextConflicts []map[string]any `json:"context_conflicts,omitempty"`
	PoisonedContent  map[string]bool  `json:"poisoned_content,omitempty"`

	GeneratedResponse  string   `json:"generated_response,omitempty"`
	ResponseConfidence float64  `json:"response_confidence"`
	ResponseValidated  bool     `json:"response_validated"`
	ValidationErrors   []string `json:"validation_errors,omitempty"`

	TurnCount    int       `json:"turn_count"`
	LastActivity time.Time `json:"last_activity"`

	HasErrors        bool             `json:"has_errors"`
	ErrorMessages    []string         `json:"error_messages,omitempty"`
	RetryCount       int              `json:"retry_count"`
	FailedOperations []map[string]any `json:"failed_operations,omitempty"`

	SuggestedQuestions     []string `json:"suggested_questions,omitempty"`
	RelatedTopics          []string `json:"related_topics,omitempty"`
	RequiresClarification  bool     `json:"requires_clarification"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewState begins a fresh thread in the greeting phase.
func NewState(threadID string) *State {
	if threadID == "" {
		threadID = uuid.NewString()
	}
	now := time.Now()
	return &State{
		ThreadID:        threadID,
		ConversationID:  uuid.NewString(),
		Phase:           PhaseGreeting,
		Messages:        make([]Message, 0, 8),
		PoisonedContent: make(map[string]bool),
		Metadata:        make(map[string]any),
		LastActivity:    now,
	}
}

// ensureMaps guards against a checkpoint round-trip leaving nil maps
// behind: JSON omits empty maps on encode, so a state loaded from a
// checkpoint where PoisonedContent or Metadata was never populated
// decodes with nil fields that would panic on first write.
func (s *State) ensureMaps() {
	if s.PoisonedContent == nil {
		s.PoisonedContent = make(map[string]bool)
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
}

// AddMessage appends a turn and applies the sliding-window memory
// management policy for long-running threads.
func (s *State) AddMessage(role Role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.Messages = append(s.Messages, msg)
	s.LastActivity = msg.Timestamp
	if role == RoleUser {
		s.TurnCount++
	}
	s.pruneHistory()
	return msg
}

// pruneHistory keeps the message log and topic list bounded so a
// long-lived thread does not grow checkpoint payloads without limit.
func (s *State) pruneHistory() {
	if len(s.Messages) > MaxConversationHistory {
		drop := len(s.Messages) - MaxConversationHistory
		s.Messages = append([]Message(nil), s.Messages[drop:]...)
	}
	if len(s.TopicsDiscussed) > MaxTopicsDiscussed {
		drop := len(s.TopicsDiscussed) - MaxTopicsDiscussed
		s.TopicsDiscussed = append([]string(nil), s.TopicsDiscussed[drop:]...)
	}
	if len(s.ErrorMessages) > MaxErrorMessages {
		drop := len(s.ErrorMessages) - MaxErrorMessages
		s.ErrorMessages = append([]string(nil), s.ErrorMessages[drop:]...)
	}
}

// RecordError appends a failure note and flips HasErrors, without ending
// the conversation outright; routing decides whether the error budget
// has been exhausted.
func (s *State) RecordError(operation, message string) {
	s.HasErrors = true
	s.ErrorMessages = append(s.ErrorMessages, message)
	s.FailedOperations = append(s.FailedOperations, map[string]any{
		"operation": operation,
		"message":   message,
		"at":        time.Now(),
	})
}

// AddTopic makes topic the current topic and records it as discussed,
// skipping it in TopicsDiscussed when it is already listed there
// (case-insensitively).
func (s *State) AddTopic(topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	s.CurrentTopic = topic
	for _, t := range s.TopicsDiscussed {
		if strings.EqualFold(t, topic) {
			return
		}
	}
	s.TopicsDiscussed = append(s.TopicsDiscussed, topic)
}

// AddTopicEntity records a concrete entity ("Building A", "Cisco 9120")
// mentioned this turn. The list is recency-ordered, most recent last: a
// re-mentioned entity moves to the end rather than duplicating, so
// contextual enrichment and the entity search strategy always try the
// freshest entity first.
func (s *State) AddTopicEntity(entity string) {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return
	}
	for i, e := range s.TopicEntities {
		if strings.EqualFold(e, entity) {
			s.TopicEntities = append(s.TopicEntities[:i], s.TopicEntities[i+1:]...)
			break
		}
	}
	s.TopicEntities = append(s.TopicEntities, entity)
	if len(s.TopicEntities) > MaxTopicEntities {
		drop := len(s.TopicEntities) - MaxTopicEntities
		s.TopicEntities = append([]string(nil), s.TopicEntities[drop:]...)
	}
}

// GetRelevantHistory returns up to MaxRelevantHistory prior messages,
// most recent first, counting only user/assistant turns; other roles are
// skipped.
func (s *State) GetRelevantHistory() []Message {
	out := make([]Message, 0, MaxRelevantHistory)
	for i := len(s.Messages) - 1; i >= 0 && len(out) < MaxRelevantHistory; i-- {
		m := s.Messages[i]
		if m.Role == RoleUser || m.Role == RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

// CalculateContextQuality derives an overall Quality bucket from the
// currently assembled ContextSegments, favoring the worst segment present
// above the quality threshold's weight.
func (s *State) CalculateContextQuality() Quality {
	if len(s.ContextSegments) == 0 {
		return QualityLow
	}
	var total float64
	poisoned, conflicted := false, false
	for _, seg := range s.ContextSegments {
		total += seg.CompositeScore
		if seg.Quality == QualityPoisoned {
			poisoned = true
		}
		if seg.Quality == QualityConflicted {
			conflicted = true
		}
	}
	if poisoned {
		return QualityPoisoned
	}
	if conflicted {
		return QualityConflicted
	}
	avg := total / float64(len(s.ContextSegments))
	switch {
	case avg >= ContextQualityThreshold:
		return QualityHigh
	case avg >= 0.4:
		return QualityMedium
	default:
		return QualityLow
	}
}

// ShouldEnd reports whether the conversation has hit one of the hard
// stop conditions: explicit goodbye, turn budget, retry budget, or error
// budget exhaustion.
func (s *State) ShouldEnd() bool {
	if s.Phase == PhaseEnding {
		return true
	}
	if s.TurnCount > MaxTurnCount {
		return true
	}
	if s.RetryCount > MaxRetryCount {
		return true
	}
	if len(s.ErrorMessages) >= MaxErrorMessages {
		return true
	}
	return false
}

// ContentHash returns a stable fingerprint used for dedup across context
// segments and search results.
func ContentHash(content string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(strings.ToLower(content))))
	return hex.EncodeToString(sum[:])
}

// Summary renders a short human-readable recap of the thread, used in
// logging and in degraded responses when no LLM is configured.
func (s *State) Summary() string {
	return fmt.Sprintf("thread=%s turns=%d phase=%s topic=%q", s.ThreadID, s.TurnCount, s.Phase, s.CurrentTopic)
}
