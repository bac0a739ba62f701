// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package verifier

import (
	"testing"

	"github.com/northbound/rag-core/internal/events"
)

func TestVerifier_VerifyChunkOverlap_GoodOverlap(t *testing.T) {
	v := New(events.NewBus(), "")
	report := &Report{File: "doc.txt"}

	chunks := []string{
		"the quick brown fox jumps over the lazy dog",
		"jumps over the lazy dog and keeps running",
	}
	v.VerifyChunkOverlap(report, chunks, 10)

	check := lastCheck(t, report, "chunk_overlap")
	if check.Status != StatusPassed {
		t.Errorf("expected passed status for overlapping chunks, got %s: %s", check.Status, check.Message)
	}
}

func TestVerifier_VerifyChunkOverlap_NoOverlap(t *testing.T) {
	v := New(events.NewBus(), "")
	report := &Report{File: "doc.txt"}

	chunks := []string{
		"completely unrelated first chunk of text",
		"an entirely different second chunk",
	}
	v.VerifyChunkOverlap(report, chunks, 10)

	check := lastCheck(t, report, "chunk_overlap")
	if check.Status != StatusWarning {
		t.Errorf("expected warning status for non-overlapping chunks, got %s", check.Status)
	}
}

func TestVerifier_VerifyChunkOverlap_SingleChunk(t *testing.T) {
	v := New(events.NewBus(), "")
	report := &Report{File: "doc.txt"}

	v.VerifyChunkOverlap(report, []string{"only one chunk"}, 10)

	check := lastCheck(t, report, "chunk_overlap")
	if check.Status != StatusPassed {
		t.Errorf("expected passed status when fewer than 2 chunks, got %s", check.Status)
	}
}

func TestOverlapLength(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"hello world", "world peace", 5},
		{"abc", "xyz", 0},
		{"", "xyz", 0},
		{"abc", "", 0},
	}
	for _, c := range cases {
		if got := overlapLength(c.a, c.b, 300); got != c.want {
			t.Errorf("overlapLength(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func lastCheck(t *testing.T, report *Report, name string) Check {
	t.Helper()
	for i := len(report.Checks) - 1; i >= 0; i-- {
		if report.Checks[i].Name == name {
			return report.Checks[i]
		}
	}
	t.Fatalf("no check named %q recorded", name)
	return Check{}
}
