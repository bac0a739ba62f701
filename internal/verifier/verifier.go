// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package verifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/northbound/rag-core/internal/events"
	"github.com/northbound/rag-core/internal/logger"
)

// Stage names the seven pipeline stages checked by the verifier.
type Stage string

const (
	StageFileValidation     Stage = "file_validation"
	StageProcessorSelection Stage = "processor_selection"
	StageContentExtraction  Stage = "content_extraction"
	StageTextChunking       Stage = "text_chunking"
	StageEmbeddingGen       Stage = "embedding_generation"
	StageVectorStorage      Stage = "vector_storage"
	StageMetadataStorage    Stage = "metadata_storage"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
	StatusSkipped Status = "skipped"
	StatusRunning Status = "running"
	StatusPending Status = "pending"
)

// Check is one quality gate result within a stage.
type Check struct {
	Stage      Stage          `json:"stage"`
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS int64          `json:"duration_ms"`
}

// Report accumulates every check recorded during one file's pipeline run.
type Report struct {
	File   string  `json:"file"`
	Checks []Check `json:"checks"`
}

// Failed reports whether any accumulated check failed.
func (r Report) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Verifier runs per-stage quality checks and emits start/finish
// events for each stage to the shared event bus.
type Verifier struct {
	bus      *events.Bus
	log      *logger.Logger
	dumpDir  string // if non-empty, each Report is saved as JSON here for debugging
}

// New constructs a Verifier. dumpDir, if non-empty, enables saving a JSON
// dump of each file's report for offline debugging.
func New(bus *events.Bus, dumpDir string) *Verifier {
	return &Verifier{bus: bus, log: logger.GetDefault(), dumpDir: dumpDir}
}

// StageTimer marks the start of a stage for a file, returning a function
// that records the finish, computes duration, and emits the pair of
// pipeline_stage_started / pipeline_stage_completed events.
func (v *Verifier) StageTimer(file string, stage Stage) func() {
	started := time.Now()
	v.bus.Publish(events.TypePipelineStageStarted, map[string]any{"file": file, "stage": string(stage)})
	return func() {
		v.bus.Publish(events.TypePipelineStageCompleted, map[string]any{
			"file": file, "stage": string(stage), "duration_ms": time.Since(started).Milliseconds(),
		})
	}
}

func (r *Report) record(stage Stage, name string, status Status, message string, details map[string]any, start time.Time) Check {
	c := Check{
		Stage:      stage,
		Name:       name,
		Status:     status,
		Message:    message,
		Details:    details,
		Timestamp:  time.Now(),
		DurationMS: time.Since(start).Milliseconds(),
	}
	r.Checks = append(r.Checks, c)
	return c
}

// VerifyFileValidation checks existence, size, readability, and extension.
func (v *Verifier) VerifyFileValidation(report *Report, path string) {
	start := time.Now()
	info, err := os.Stat(path)
	if err != nil {
		report.record(StageFileValidation, "exists", StatusFailed, fmt.Sprintf("file does not exist: %v", err), nil, start)
		return
	}
	report.record(StageFileValidation, "exists", StatusPassed, "file exists", nil, start)

	start = time.Now()
	if info.Size() == 0 {
		report.record(StageFileValidation, "size_nonzero", StatusFailed, "file is empty", nil, start)
	} else if info.Size() > 100*1024*1024 {
		report.record(StageFileValidation, "size_nonzero", StatusWarning, "file exceeds 100MB", map[string]any{"size": info.Size()}, start)
	} else {
		report.record(StageFileValidation, "size_nonzero", StatusPassed, "size within bounds", map[string]any{"size": info.Size()}, start)
	}

	start = time.Now()
	f, err := os.Open(path)
	if err != nil {
		report.record(StageFileValidation, "readable", StatusFailed, fmt.Sprintf("cannot open file: %v", err), nil, start)
	} else {
		f.Close()
		report.record(StageFileValidation, "readable", StatusPassed, "file is readable", nil, start)
	}

	start = time.Now()
	supportedExts := map[string]bool{".pdf": true, ".docx": true, ".xlsx": true, ".txt": true, ".md": true, ".csv": true}
	ext := filepath.Ext(path)
	if !supportedExts[ext] {
		report.record(StageFileValidation, "extension_known", StatusWarning, fmt.Sprintf("unrecognized extension %q", ext), nil, start)
	} else {
		report.record(StageFileValidation, "extension_known", StatusPassed, "extension recognized", nil, start)
	}
}

// VerifyProcessorSelection records which processor (or generic fallback)
// was chosen for path.
func (v *Verifier) VerifyProcessorSelection(report *Report, processorName string, matched bool) {
	start := time.Now()
	if !matched {
		report.record(StageProcessorSelection, "processor_matched", StatusWarning, "no specialized processor, using generic extractor", nil, start)
		return
	}
	report.record(StageProcessorSelection, "processor_matched", StatusPassed, fmt.Sprintf("selected processor %q", processorName), nil, start)
}

// VerifyContentExtraction checks extraction status and a minimum character
// count.
func (v *Verifier) VerifyContentExtraction(report *Report, status string, totalChars int) {
	start := time.Now()
	if status != "ok" && status != "success" {
		report.record(StageContentExtraction, "status_success", StatusFailed, fmt.Sprintf("extraction status was %q", status), nil, start)
		return
	}
	report.record(StageContentExtraction, "status_success", StatusPassed, "extraction succeeded", nil, start)

	start = time.Now()
	if totalChars < 10 {
		report.record(StageContentExtraction, "min_chars", StatusWarning, fmt.Sprintf("only %d characters extracted", totalChars), nil, start)
	} else {
		report.record(StageContentExtraction, "min_chars", StatusPassed, fmt.Sprintf("%d characters extracted", totalChars), nil, start)
	}
}

// VerifyTextChunking checks chunk count, empties, oversize chunks, and
// per-chunk metadata coverage.
func (v *Verifier) VerifyTextChunking(report *Report, chunkLens []int, withMetadata int) {
	start := time.Now()
	if len(chunkLens) == 0 {
		report.record(StageTextChunking, "has_chunks", StatusFailed, "no chunks produced", nil, start)
		return
	}
	report.record(StageTextChunking, "has_chunks", StatusPassed, fmt.Sprintf("%d chunks", len(chunkLens)), nil, start)

	start = time.Now()
	emptyCount, oversizeCount := 0, 0
	for _, n := range chunkLens {
		if n == 0 {
			emptyCount++
		}
		if n > 2000 {
			oversizeCount++
		}
	}
	if emptyCount > 0 {
		report.record(StageTextChunking, "no_empty_chunks", StatusWarning, fmt.Sprintf("%d empty chunks", emptyCount), nil, start)
	} else {
		report.record(StageTextChunking, "no_empty_chunks", StatusPassed, "no empty chunks", nil, start)
	}

	start = time.Now()
	if oversizeCount > 0 {
		report.record(StageTextChunking, "chunk_size_bound", StatusWarning, fmt.Sprintf("%d chunks exceed 2000 chars", oversizeCount), nil, start)
	} else {
		report.record(StageTextChunking, "chunk_size_bound", StatusPassed, "all chunks within size bound", nil, start)
	}

	start = time.Now()
	coverage := float64(withMetadata) / float64(len(chunkLens))
	if coverage < 0.5 {
		report.record(StageTextChunking, "metadata_coverage", StatusWarning, fmt.Sprintf("only %.0f%% of chunks carry metadata", coverage*100), nil, start)
	} else {
		report.record(StageTextChunking, "metadata_coverage", StatusPassed, fmt.Sprintf("%.0f%% of chunks carry metadata", coverage*100), nil, start)
	}
}

// VerifyChunkOverlap checks that consecutive chunks actually share the
// expected boundary text rather than just trusting the chunker's reported
// offsets: it finds the longest suffix of chunk i that's a prefix of chunk
// i+1 (capped at 300 characters) and flags the run if the average falls
// below minOverlap, which would mean retrieval loses context at chunk
// boundaries despite the chunker believing it produced overlap.
func (v *Verifier) VerifyChunkOverlap(report *Report, chunkTexts []string, minOverlap int) {
	start := time.Now()
	if len(chunkTexts) < 2 {
		report.record(StageTextChunking, "chunk_overlap", StatusPassed, "fewer than 2 chunks, nothing to overlap", nil, start)
		return
	}

	overlaps := make([]int, 0, len(chunkTexts)-1)
	for i := 0; i < len(chunkTexts)-1; i++ {
		overlaps = append(overlaps, overlapLength(chunkTexts[i], chunkTexts[i+1], 300))
	}

	var sum int
	maxOverlap := 0
	for _, o := range overlaps {
		sum += o
		if o > maxOverlap {
			maxOverlap = o
		}
	}
	avg := float64(sum) / float64(len(overlaps))

	details := map[string]any{"avg_overlap": avg, "max_overlap": maxOverlap}
	if avg < float64(minOverlap) {
		report.record(StageTextChunking, "chunk_overlap", StatusWarning, fmt.Sprintf("average overlap %.0f chars below expected %d, boundary context may be lost", avg, minOverlap), details, start)
		return
	}
	report.record(StageTextChunking, "chunk_overlap", StatusPassed, fmt.Sprintf("average overlap %.0f chars", avg), details, start)
}

// overlapLength finds the longest suffix of a that equals a prefix of b,
// checked over at most the last maxCheck characters of a.
func overlapLength(a, b string, maxCheck int) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	if maxCheck < max {
		max = maxCheck
	}
	for i := max; i > 0; i-- {
		if a[len(a)-i:] == b[:i] {
			return i
		}
	}
	return 0
}

// VerifyEmbeddingGeneration checks vector count, uniform dimension, and the
// absence of NaN/Inf values.
func (v *Verifier) VerifyEmbeddingGeneration(report *Report, chunkCount int, vectors [][]float32) {
	start := time.Now()
	if len(vectors) != chunkCount {
		report.record(StageEmbeddingGen, "count_matches_chunks", StatusFailed, fmt.Sprintf("got %d vectors for %d chunks", len(vectors), chunkCount), nil, start)
	} else {
		report.record(StageEmbeddingGen, "count_matches_chunks", StatusPassed, "vector count matches chunk count", nil, start)
	}

	start = time.Now()
	dim := -1
	dimMismatch := false
	badValue := false
	for _, vec := range vectors {
		if dim == -1 {
			dim = len(vec)
		} else if len(vec) != dim {
			dimMismatch = true
		}
		for _, x := range vec {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				badValue = true
			}
		}
	}
	if dimMismatch {
		report.record(StageEmbeddingGen, "uniform_dimension", StatusFailed, "vectors have inconsistent dimension", nil, start)
	} else {
		report.record(StageEmbeddingGen, "uniform_dimension", StatusPassed, "vectors share one dimension", map[string]any{"dimension": dim}, start)
	}

	start = time.Now()
	if badValue {
		report.record(StageEmbeddingGen, "finite_values", StatusFailed, "NaN or infinite value found in a vector", nil, start)
	} else {
		report.record(StageEmbeddingGen, "finite_values", StatusPassed, "all vector values are finite", nil, start)
	}
}

// VerifyVectorStorage probes round-trip retrievability of the first
// inserted vector_id.
func (v *Verifier) VerifyVectorStorage(report *Report, firstVectorID string, retrievable bool) {
	start := time.Now()
	if firstVectorID == "" {
		report.record(StageVectorStorage, "round_trip", StatusSkipped, "no vectors stored", nil, start)
		return
	}
	if !retrievable {
		report.record(StageVectorStorage, "round_trip", StatusFailed, fmt.Sprintf("could not retrieve %q after insert", firstVectorID), nil, start)
		return
	}
	report.record(StageVectorStorage, "round_trip", StatusPassed, fmt.Sprintf("retrieved %q after insert", firstVectorID), nil, start)
}

// VerifyMetadataStorage probes round-trip retrievability of the first
// inserted metadata record.
func (v *Verifier) VerifyMetadataStorage(report *Report, firstVectorID string, retrievable bool) {
	start := time.Now()
	if firstVectorID == "" {
		report.record(StageMetadataStorage, "round_trip", StatusSkipped, "no metadata stored", nil, start)
		return
	}
	if !retrievable {
		report.record(StageMetadataStorage, "round_trip", StatusFailed, fmt.Sprintf("could not retrieve metadata for %q", firstVectorID), nil, start)
		return
	}
	report.record(StageMetadataStorage, "round_trip", StatusPassed, fmt.Sprintf("retrieved metadata for %q", firstVectorID), nil, start)
}

// Finalize optionally persists report as a JSON dump when dumpDir is set,
// for post-hoc debugging of a pipeline run.
func (v *Verifier) Finalize(report Report) {
	if v.dumpDir == "" {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		v.log.Warnf("verifier: failed to marshal report for %s: %v", report.File, err)
		return
	}
	name := filepath.Join(v.dumpDir, fmt.Sprintf("%s.json", sanitizeFileName(report.File)))
	if err := os.WriteFile(name, data, 0644); err != nil {
		v.log.Warnf("verifier: failed to write dump for %s: %v", report.File, err)
	}
}

func sanitizeFileName(path string) string {
	out := make([]rune, 0, len(path))
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
