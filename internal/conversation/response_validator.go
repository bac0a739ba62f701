// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"regexp"
	"strings"

	"github.com/northbound/rag-core/internal/logger"
)

// minPassConfidence is the mean confidence across all checks required
// for Validate to pass, in addition to zero hard errors.
const minPassConfidence = 0.6

// checkResult is the outcome of one independent validation check.
type checkResult struct {
	name       string
	passed     bool
	confidence float64
	errors     []string
}

// ResponseValidator runs independent checks against a generated response
// before it is shown to the user: does it hallucinate beyond the
// retrieved sources, is it consistent with the assembled context, does it address the
// query, is it topically relevant, and do its factual claims trace back
// to a source.
type ResponseValidator struct {
	log *logger.Logger
}

func NewResponseValidator() *ResponseValidator {
	return &ResponseValidator{log: logger.GetDefault()}
}

// Validate runs all five checks and reports overall pass/fail, the mean
// confidence across checks, and the union of their error messages.
func (v *ResponseValidator) Validate(response string, state *State, sources []map[string]any) (bool, float64, []string) {
	checks := []checkResult{
		v.checkHallucination(response, sources),
		v.checkConsistency(response, state),
		v.checkCompleteness(response, state),
		v.checkRelevance(response, state),
		v.checkFactualAccuracy(response, sources),
	}

	var total float64
	var errs []string
	hardFail := false
	for _, c := range checks {
		total += c.confidence
		errs = append(errs, c.errors...)
		if !c.passed {
			hardFail = true
		}
	}
	mean := total / float64(len(checks))
	passed := !hardFail && mean >= minPassConfidence
	return passed, mean, errs
}

func (v *ResponseValidator) checkHallucination(response string, sources []map[string]any) checkResult {
	if len(sources) == 0 {
		if strings.TrimSpace(response) == "" {
			return checkResult{name: "hallucination", passed: true, confidence: 1.0}
		}
		// No sources but a substantive response: only acceptable for
		// conversational replies, which this check cannot distinguish
		// from fabrication, so it scores low rather than failing hard.
		return checkResult{name: "hallucination", passed: true, confidence: 0.5}
	}
	supported := 0
	claims := extractClaims(response)
	for _, claim := range claims {
		if claimSupportedBySources(claim, sources) {
			supported++
		}
	}
	if len(claims) == 0 {
		return checkResult{name: "hallucination", passed: true, confidence: 0.8}
	}
	ratio := float64(supported) / float64(len(claims))
	if ratio < 0.5 {
		return checkResult{
			name: "hallucination", passed: false, confidence: ratio,
			errors: []string{"response contains claims not traceable to any retrieved source"},
		}
	}
	return checkResult{name: "hallucination", passed: true, confidence: ratio}
}

func (v *ResponseValidator) checkConsistency(response string, state *State) checkResult {
	for _, seg := range state.ContextSegments {
		if contentsConflict(response, seg.Content) {
			return checkResult{
				name: "consistency", passed: false, confidence: 0.3,
				errors: []string{"response contradicts assembled context"},
			}
		}
	}
	return checkResult{name: "consistency", passed: true, confidence: 0.9}
}

func (v *ResponseValidator) checkCompleteness(response string, state *State) checkResult {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return checkResult{name: "completeness", passed: false, confidence: 0, errors: []string{"empty response"}}
	}
	words := len(strings.Fields(trimmed))
	switch {
	case words < 3:
		return checkResult{name: "completeness", passed: false, confidence: 0.2, errors: []string{"response too short to address the query"}}
	case words < 10:
		return checkResult{name: "completeness", passed: true, confidence: 0.6}
	default:
		return checkResult{name: "completeness", passed: true, confidence: 0.9}
	}
}

func (v *ResponseValidator) checkRelevance(response string, state *State) checkResult {
	queryWords := keywordSet(state.ProcessedQuery)
	if len(queryWords) == 0 {
		return checkResult{name: "relevance", passed: true, confidence: 0.7}
	}
	respWords := keywordSet(response)
	overlap := 0
	for w := range queryWords {
		if respWords[w] {
			overlap++
		}
	}
	ratio := float64(overlap) / float64(len(queryWords))
	if ratio < 0.15 && len(respWords) > 0 {
		return checkResult{
			name: "relevance", passed: false, confidence: ratio,
			errors: []string{"response does not appear to address the query"},
		}
	}
	conf := ratio
	if conf < 0.5 {
		conf = 0.5 + ratio/2
	}
	return checkResult{name: "relevance", passed: true, confidence: conf}
}

func (v *ResponseValidator) checkFactualAccuracy(response string, sources []map[string]any) checkResult {
	claims := extractFactualClaims(response)
	if len(claims) == 0 {
		return checkResult{name: "factual_accuracy", passed: true, confidence: 0.8}
	}
	verified := 0
	for _, claim := range claims {
		if verifyClaim(claim, sources) {
			verified++
		}
	}
	ratio := float64(verified) / float64(len(claims))
	if ratio < 0.5 {
		return checkResult{
			name: "factual_accuracy", passed: false, confidence: ratio,
			errors: []string{"factual claims could not be verified against sources"},
		}
	}
	return checkResult{name: "factual_accuracy", passed: true, confidence: ratio}
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)

// extractClaims splits a response into sentence-sized claim candidates.
func extractClaims(response string) []string {
	parts := sentenceSplit.Split(strings.TrimSpace(response), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}

var factualMarkers = regexp.MustCompile(`(?i)\b(\d+(\.\d+)?%?|is|are|was|were|has|have)\b`)

// extractFactualClaims narrows extractClaims to sentences carrying a
// number or an assertive verb, the sentences worth tracing to a source.
func extractFactualClaims(response string) []string {
	claims := extractClaims(response)
	out := make([]string, 0, len(claims))
	for _, c := range claims {
		if factualMarkers.MatchString(c) {
			out = append(out, c)
		}
	}
	return out
}

// claimSupportedBySources reports whether any source's content shares
// enough vocabulary with the claim to plausibly back it.
func claimSupportedBySources(claim string, sources []map[string]any) bool {
	claimWords := keywordSet(claim)
	if len(claimWords) == 0 {
		return true
	}
	for _, src := range sources {
		text, _ := src["content"].(string)
		if text == "" {
			text, _ = src["text"].(string)
		}
		srcWords := keywordSet(text)
		overlap := 0
		for w := range claimWords {
			if srcWords[w] {
				overlap++
			}
		}
		if float64(overlap)/float64(len(claimWords)) >= 0.4 {
			return true
		}
	}
	return false
}

// verifyClaim is a stricter variant of claimSupportedBySources requiring
// higher overlap, used for the factual-accuracy check specifically.
func verifyClaim(claim string, sources []map[string]any) bool {
	claimWords := keywordSet(claim)
	if len(claimWords) == 0 {
		return true
	}
	for _, src := range sources {
		text, _ := src["content"].(string)
		if text == "" {
			text, _ = src["text"].(string)
		}
		srcWords := keywordSet(text)
		overlap := 0
		for w := range claimWords {
			if srcWords[w] {
				overlap++
			}
		}
		if float64(overlap)/float64(len(claimWords)) >= 0.55 {
			return true
		}
	}
	return false
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true, "were": true,
	"of": true, "to": true, "in": true, "on": true, "and": true, "or": true, "it": true,
	"this": true, "that": true, "for": true, "with": true, "as": true, "be": true, "has": true,
	"have": true, "at": true, "by": true, "from": true,
}

func keywordSet(text string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) < 3 || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
