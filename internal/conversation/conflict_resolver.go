// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/northbound/rag-core/internal/logger"
)

// SearchAttempt is one strategy's outcome from the multi-strategy search
// cascade: the strategy name and the results it produced, before
// resolution across attempts.
type SearchAttempt struct {
	Strategy string
	Results  []SearchResult
}

// reliableSourceMarkers boost a source's trust score when its name or
// metadata signals an authoritative origin.
var reliableSourceMarkers = []string{"official", "verified", "canonical", "authoritative"}

// ConflictResolver merges the results of multiple search attempts into
// one ranked, deduplicated set, detecting and resolving disagreements
// between sources rather than presenting contradictory information
// side by side.
type ConflictResolver struct {
	log *logger.Logger
}

func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{log: logger.GetDefault()}
}

// Resolve merges every attempt's results, flags conflicts between
// overlapping results, resolves each conflict by source reliability
// (which gives a small boost to a result carrying a created_at timestamp;
// timestamps are not compared) then score, and caps the merged output at
// 10 results.
func (r *ConflictResolver) Resolve(attempts []SearchAttempt, state *State) []SearchResult {
	all := make([]SearchResult, 0, 16)
	for _, a := range attempts {
		for _, res := range a.Results {
			res.StrategyUsed = a.Strategy
			all = append(all, res)
		}
	}
	if len(all) == 0 {
		return nil
	}

	conflicts := r.identifyConflicts(all)
	if len(conflicts) > 0 {
		state.ContextConflicts = append(state.ContextConflicts, conflicts...)
		all = r.applyResolution(all, conflicts)
	}

	merged := r.dedupeAndRank(all)
	if len(merged) > 10 {
		merged = merged[:10]
	}
	for i := range merged {
		merged[i].Metadata = withMergedFrom(merged[i].Metadata, len(attempts))
	}
	return merged
}

func withMergedFrom(meta map[string]any, n int) map[string]any {
	if meta == nil {
		meta = make(map[string]any, 1)
	}
	meta["merged_from"] = n
	return meta
}

// identifyConflicts pairs up results that discuss the same subject but
// disagree numerically or through explicit negation/affirmation.
func (r *ConflictResolver) identifyConflicts(results []SearchResult) []map[string]any {
	var conflicts []map[string]any
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			if r.informationConflicts(results[i], results[j]) {
				conflicts = append(conflicts, map[string]any{
					"a":      results[i].Source,
					"b":      results[j].Source,
					"reason": "contradictory content",
				})
			}
		}
	}
	return conflicts
}

// informationConflicts reports whether two results appear to disagree:
// shared vocabulary (so they're "about" the same thing) combined with
// either a negation mismatch or diverging numeric values.
func (r *ConflictResolver) informationConflicts(a, b SearchResult) bool {
	aw, bw := keywordSet(a.Content), keywordSet(b.Content)
	overlap := 0
	for w := range aw {
		if bw[w] {
			overlap++
		}
	}
	if overlap < 2 {
		return false
	}
	if contentsConflict(a.Content, b.Content) {
		return true
	}
	return numbersDiverge(a.Content, b.Content)
}

func numbersDiverge(a, b string) bool {
	na, okA := firstNumber(a)
	nb, okB := firstNumber(b)
	if !okA || !okB {
		return false
	}
	if na == 0 && nb == 0 {
		return false
	}
	diff := na - nb
	if diff < 0 {
		diff = -diff
	}
	denom := na
	if nb > denom {
		denom = nb
	}
	if denom == 0 {
		return false
	}
	return diff/denom > 0.1
}

func firstNumber(s string) (float64, bool) {
	var digits strings.Builder
	seenDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
			seenDigit = true
		case r == '.' && seenDigit:
			digits.WriteRune(r)
		case seenDigit:
			goto done
		}
	}
done:
	if !seenDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(digits.String(), 64)
	return f, err == nil
}

// applyResolution down-weights the less trustworthy side of each
// conflict pair rather than discarding either result outright, so the
// caller can still see both but rank the resolved winner first.
func (r *ConflictResolver) applyResolution(results []SearchResult, conflicts []map[string]any) []SearchResult {
	bySource := make(map[string]int, len(results))
	for i, res := range results {
		bySource[res.Source] = i
	}
	for _, c := range conflicts {
		aIdx, aOK := bySource[c["a"].(string)]
		bIdx, bOK := bySource[c["b"].(string)]
		if !aOK || !bOK {
			continue
		}
		ra, rb := &results[aIdx], &results[bIdx]
		relA := r.sourceReliability(*ra)
		relB := r.sourceReliability(*rb)
		if relA > relB {
			rb.Conflicts = append(rb.Conflicts, ra.Source)
			rb.Score *= 0.7
		} else if relB > relA {
			ra.Conflicts = append(ra.Conflicts, rb.Source)
			ra.Score *= 0.7
		} else {
			// Equal reliability: prefer the higher original retrieval score.
			if ra.Score >= rb.Score {
				rb.Score *= 0.85
			} else {
				ra.Score *= 0.85
			}
		}
	}
	return results
}

// sourceReliability scores a result's trustworthiness from its source
// name and metadata: official/verified markers beat ordinary documents,
// and a result carrying a created_at timestamp gets a small boost; the
// timestamps themselves are not compared.
func (r *ConflictResolver) sourceReliability(res SearchResult) float64 {
	score := 0.5
	lower := strings.ToLower(res.Source)
	for _, marker := range reliableSourceMarkers {
		if strings.Contains(lower, marker) {
			score += 0.3
			break
		}
	}
	if ts, ok := res.Metadata["created_at"]; ok {
		if _, isStr := ts.(string); isStr {
			score += 0.05 // presence of a timestamp is itself a weak trust signal
		}
	}
	return score
}

// dedupeAndRank removes content-hash duplicates, keeping the
// highest-scoring copy, and sorts by score descending.
func (r *ConflictResolver) dedupeAndRank(results []SearchResult) []SearchResult {
	best := make(map[string]SearchResult, len(results))
	order := make([]string, 0, len(results))
	for _, res := range results {
		hash := ContentHash(res.Content)
		if existing, ok := best[hash]; !ok {
			best[hash] = res
			order = append(order, hash)
		} else if res.Score > existing.Score {
			best[hash] = res
		}
	}
	out := make([]SearchResult, 0, len(order))
	for _, h := range order {
		out = append(out, best[h])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
