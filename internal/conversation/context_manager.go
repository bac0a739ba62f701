// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/northbound/rag-core/internal/logger"
)

// qualityWeight mirrors the scoring table a composite score is built
// from: 70% measured relevance, 30% a coarse weight for the segment's
// Quality bucket.
var qualityWeight = map[Quality]float64{
	QualityHigh:       1.0,
	QualityMedium:     0.7,
	QualityLow:        0.4,
	QualityConflicted: 0.2,
	QualityPoisoned:   0.0,
}

const (
	relevanceThreshold  = 0.6
	compositeRelevanceW = 0.7
	compositeQualityW   = 0.3
)

// poisonPatterns flag content that looks like an injected instruction
// rather than retrieved knowledge: "ignore previous instructions",
// role-play jailbreaks, and similar red flags seen in prompt-injection
// corpora.
var poisonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all|previous|the above) instructions`),
	regexp.MustCompile(`(?i)disregard (your|all|previous) (rules|instructions|guidelines)`),
	regexp.MustCompile(`(?i)you are now [a-z0-9 _-]+ with no restrictions`),
	regexp.MustCompile(`(?i)system prompt`),
	regexp.MustCompile(`(?i)reveal your (instructions|prompt|system message)`),
	regexp.MustCompile(`(?i)act as (if you were|an unfiltered)`),
}

// ContextManager assembles a token-budgeted, purpose-specific context
// window from a State's conversation history and search results,
// filtering out segments that are irrelevant, redundant, contradictory,
// or look like an attempt to smuggle instructions into retrieved content.
type ContextManager struct {
	maxTokens  int
	encoder    *tiktoken.Tiktoken
	log        *logger.Logger
}

// NewContextManager builds a manager with the given token budget for
// assembled context (not the model's total context window).
func NewContextManager(maxTokens int) *ContextManager {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &ContextManager{maxTokens: maxTokens, encoder: enc, log: logger.GetDefault()}
}

func (cm *ContextManager) countTokens(text string) int {
	if cm.encoder != nil {
		return len(cm.encoder.Encode(text, nil, nil))
	}
	return len(strings.Fields(text)) // degraded estimate when the encoder failed to load
}

// BuildDynamicContext gathers candidate segments for the given purpose
// (response | search | validation | general), scores and filters them,
// and assembles as many as fit the token budget, highest composite score
// first. It returns the assembled text and the overall Quality of what
// was included.
func (cm *ContextManager) BuildDynamicContext(state *State, purpose string) (string, Quality) {
	var segments []ContextSegment
	switch purpose {
	case "response":
		segments = append(segments, cm.searchSegments(state)...)
		segments = append(segments, cm.historySegments(state)...)
	case "search":
		segments = append(segments, cm.historySegments(state)...)
	case "validation":
		segments = append(segments, cm.searchSegments(state)...)
	default:
		segments = append(segments, cm.searchSegments(state)...)
		segments = append(segments, cm.historySegments(state)...)
		segments = append(segments, cm.systemSegments(state)...)
	}

	segments = cm.scoreAndFilter(segments, state)
	state.ContextSegments = segments
	state.ContextQuality = state.CalculateContextQuality()

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].CompositeScore > segments[j].CompositeScore
	})

	var b strings.Builder
	budget := cm.maxTokens
	for _, seg := range segments {
		if seg.TokenEstimate > budget {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(seg.Content)
		budget -= seg.TokenEstimate
		if budget <= 0 {
			break
		}
	}
	return b.String(), state.ContextQuality
}

func (cm *ContextManager) searchSegments(state *State) []ContextSegment {
	out := make([]ContextSegment, 0, len(state.SearchResults))
	for _, r := range state.SearchResults {
		out = append(out, ContextSegment{
			Content:       r.Content,
			Source:        "search",
			Relevance:     r.Score,
			Timestamp:     time.Now(),
			TokenEstimate: cm.countTokens(r.Content),
		})
	}
	return out
}

func (cm *ContextManager) historySegments(state *State) []ContextSegment {
	history := state.GetRelevantHistory()
	out := make([]ContextSegment, 0, len(history))
	for i, m := range history {
		// More recent turns are more relevant; decay linearly with position.
		relevance := 0.9 - float64(i)*0.1
		if relevance < 0.3 {
			relevance = 0.3
		}
		out = append(out, ContextSegment{
			Content:       string(m.Role) + ": " + m.Content,
			Source:        "conversation",
			Relevance:     relevance,
			Timestamp:     m.Timestamp,
			TokenEstimate: cm.countTokens(m.Content),
		})
	}
	return out
}

func (cm *ContextManager) systemSegments(state *State) []ContextSegment {
	if state.CurrentTopic == "" {
		return nil
	}
	content := "current topic: " + state.CurrentTopic
	return []ContextSegment{{
		Content:       content,
		Source:        "system",
		Relevance:     0.5,
		Timestamp:     time.Now(),
		TokenEstimate: cm.countTokens(content),
	}}
}

// scoreAndFilter deduplicates by content hash, drops segments below the
// relevance threshold, detects poisoning and contradiction, and computes
// each surviving segment's composite score.
func (cm *ContextManager) scoreAndFilter(segments []ContextSegment, state *State) []ContextSegment {
	seen := make(map[string]bool, len(segments))
	out := make([]ContextSegment, 0, len(segments))
	for _, seg := range segments {
		hash := ContentHash(seg.Content)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		seg.contentHash = hash

		if cm.isPoisoned(seg.Content) {
			state.PoisonedContent[hash] = true
			seg.Quality = QualityPoisoned
			continue // poisoned content is dropped outright, never assembled
		}
		if seg.Relevance < relevanceThreshold {
			continue
		}
		if cm.isRepetitive(seg, out) {
			continue
		}
		seg.Quality = cm.classifyQuality(seg, out)
		seg.CompositeScore = compositeRelevanceW*seg.Relevance + compositeQualityW*qualityWeight[seg.Quality]
		out = append(out, seg)
	}
	return out
}

func (cm *ContextManager) isPoisoned(content string) bool {
	for _, p := range poisonPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// isRepetitive flags near-duplicate segments (same normalized prefix)
// that slipped past the hash-exact dedup above.
func (cm *ContextManager) isRepetitive(seg ContextSegment, accepted []ContextSegment) bool {
	norm := strings.ToLower(strings.TrimSpace(seg.Content))
	for _, a := range accepted {
		other := strings.ToLower(strings.TrimSpace(a.Content))
		shortest := len(norm)
		if len(other) < shortest {
			shortest = len(other)
		}
		if shortest < 20 {
			continue
		}
		if strings.HasPrefix(norm, other[:shortest/2]) && shortest > 40 {
			return true
		}
	}
	return false
}

// classifyQuality flags a conflicted segment when it numerically or
// factually contradicts one already accepted; otherwise grades on
// relevance alone.
func (cm *ContextManager) classifyQuality(seg ContextSegment, accepted []ContextSegment) Quality {
	for _, a := range accepted {
		if contentsConflict(seg.Content, a.Content) {
			return QualityConflicted
		}
	}
	switch {
	case seg.Relevance >= 0.85:
		return QualityHigh
	case seg.Relevance >= relevanceThreshold:
		return QualityMedium
	default:
		return QualityLow
	}
}

var negationPairs = [][2]string{
	{"is not", "is"},
	{"cannot", "can"},
	{"does not", "does"},
	{"no longer", "still"},
}

// contentsConflict is a cheap heuristic shared with the conflict
// resolver: two segments conflict when they discuss overlapping
// vocabulary but one asserts a negation the other affirms.
func contentsConflict(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range negationPairs {
		if strings.Contains(la, pair[0]) && strings.Contains(lb, pair[1]) && !strings.Contains(lb, pair[0]) {
			return true
		}
		if strings.Contains(lb, pair[0]) && strings.Contains(la, pair[1]) && !strings.Contains(la, pair[0]) {
			return true
		}
	}
	return false
}
