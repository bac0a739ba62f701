// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package progress

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/northbound/rag-core/internal/logger"
)

// Stage is one named step of the ingestion pipeline a file moves through.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageValidating Stage = "validating"
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageStoring    Stage = "storing"
	StageIndexing   Stage = "indexing"
	StageFinalizing Stage = "finalizing"
)

// stageWeights sums to 1.0; overall progress is the
// weighted sum of each stage's own [0,1] completion.
var stageWeights = map[Stage]float64{
	StageQueued:     0.05,
	StageValidating: 0.10,
	StageExtracting: 0.20,
	StageChunking:   0.15,
	StageEmbedding:  0.25,
	StageStoring:    0.15,
	StageIndexing:   0.05,
	StageFinalizing: 0.05,
}

var stageOrder = []Stage{
	StageQueued, StageValidating, StageExtracting, StageChunking,
	StageEmbedding, StageStoring, StageIndexing, StageFinalizing,
}

// Status is the terminal/in-flight classification of a FileProgress record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// FileProgress tracks one file's journey through the pipeline.
type FileProgress struct {
	File       string             `json:"file"`
	Status     Status             `json:"status"`
	Overall    float64            `json:"overall"`
	StageProgs map[Stage]float64  `json:"stage_progress"`
	Details    map[string]any     `json:"details,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	FinishedAt time.Time          `json:"finished_at,omitempty"`
	Metrics    map[string]any     `json:"metrics,omitempty"`
}

// BatchProgress groups a set of files queued together (e.g. one
// ingest_directory call).
type BatchProgress struct {
	ID        string    `json:"id"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressCallback, CompletionCallback and ErrorCallback are the three
// subscriber classes dispatched synchronously by Tracker; a panicking
// subscriber is caught and logged, never propagated to the pipeline.
type ProgressCallback func(FileProgress)
type CompletionCallback func(FileProgress)
type ErrorCallback func(file string, err error)

// Tracker reports per-file, per-batch, and
// system-wide progress with periodic JSON persistence.
type Tracker struct {
	mu      sync.RWMutex
	files   map[string]*FileProgress
	batches map[string]*BatchProgress

	progressSubs   []ProgressCallback
	completionSubs []CompletionCallback
	errorSubs      []ErrorCallback

	persistPath string
	log         *logger.Logger

	saveInterval time.Duration
	stopSave     chan struct{}

	rate rateWindow
}

// NewTracker constructs a Tracker that auto-saves to persistPath every
// saveInterval (0 disables auto-save). Call Close to stop the save loop.
func NewTracker(persistPath string, saveInterval time.Duration) *Tracker {
	t := &Tracker{
		files:        make(map[string]*FileProgress),
		batches:      make(map[string]*BatchProgress),
		persistPath:  persistPath,
		saveInterval: saveInterval,
		log:          logger.GetDefault(),
		stopSave:     make(chan struct{}),
	}
	t.loadFromDisk()
	if saveInterval > 0 && persistPath != "" {
		go t.autoSaveLoop()
	}
	return t
}

// Close stops the auto-save loop and flushes one final save.
func (t *Tracker) Close() {
	close(t.stopSave)
	if t.persistPath != "" {
		_ = t.save()
	}
}

func (t *Tracker) autoSaveLoop() {
	ticker := time.NewTicker(t.saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.save(); err != nil {
				t.log.Warnf("progress: auto-save failed: %v", err)
			}
		case <-t.stopSave:
			return
		}
	}
}

// OnProgress, OnCompletion, OnError register subscribers.
func (t *Tracker) OnProgress(cb ProgressCallback)     { t.progressSubs = append(t.progressSubs, cb) }
func (t *Tracker) OnCompletion(cb CompletionCallback) { t.completionSubs = append(t.completionSubs, cb) }
func (t *Tracker) OnError(cb ErrorCallback)            { t.errorSubs = append(t.errorSubs, cb) }

// StartFile registers a new in-flight file at the queued stage.
func (t *Tracker) StartFile(file string) {
	t.mu.Lock()
	now := time.Now()
	fp := &FileProgress{
		File:       file,
		Status:     StatusRunning,
		StageProgs: map[Stage]float64{StageQueued: 1.0},
		StartedAt:  now,
		UpdatedAt:  now,
	}
	fp.Overall = weightedOverall(fp.StageProgs)
	t.files[file] = fp
	snapshot := *fp
	t.mu.Unlock()

	t.notifyProgress(snapshot)
}

// UpdateStage records fractional progress within stage for file.
func (t *Tracker) UpdateStage(file string, stage Stage, progress float64, details map[string]any) {
	t.mu.Lock()
	fp, ok := t.files[file]
	if !ok {
		fp = &FileProgress{File: file, Status: StatusRunning, StageProgs: make(map[Stage]float64), StartedAt: time.Now()}
		t.files[file] = fp
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	fp.StageProgs[stage] = progress
	fp.UpdatedAt = time.Now()
	if details != nil {
		fp.Details = details
	}
	fp.Overall = weightedOverall(fp.StageProgs)
	snapshot := *fp
	t.mu.Unlock()

	t.notifyProgress(snapshot)
}

// CompleteStage marks stage fully done for file.
func (t *Tracker) CompleteStage(file string, stage Stage) {
	t.UpdateStage(file, stage, 1.0, nil)
}

// FailFile marks file failed, recording the error. The stage argument is
// accepted but not stored on the record.
func (t *Tracker) FailFile(file string, err error, stage Stage) {
	t.mu.Lock()
	fp, ok := t.files[file]
	if !ok {
		fp = &FileProgress{File: file, StageProgs: make(map[Stage]float64), StartedAt: time.Now()}
		t.files[file] = fp
	}
	fp.Status = StatusFailed
	fp.Error = err.Error()
	fp.UpdatedAt = time.Now()
	fp.FinishedAt = fp.UpdatedAt
	snapshot := *fp
	t.mu.Unlock()

	t.notifyError(file, err)
	t.notifyCompletion(snapshot)
}

// CompleteFile marks file completed with status forced to 1.0 overall
// progress regardless of individual stage weights.
func (t *Tracker) CompleteFile(file string, metrics map[string]any) {
	t.mu.Lock()
	fp, ok := t.files[file]
	if !ok {
		fp = &FileProgress{File: file, StageProgs: make(map[Stage]float64), StartedAt: time.Now()}
		t.files[file] = fp
	}
	fp.Status = StatusCompleted
	fp.Overall = 1.0
	fp.Metrics = metrics
	fp.UpdatedAt = time.Now()
	fp.FinishedAt = fp.UpdatedAt
	snapshot := *fp
	t.mu.Unlock()

	t.notifyCompletion(snapshot)
}

// CreateBatch registers a named group of files queued together.
func (t *Tracker) CreateBatch(id string, files []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches[id] = &BatchProgress{ID: id, Files: files, CreatedAt: time.Now()}
}

// GetProgress returns the current record for file.
func (t *Tracker) GetProgress(file string) (FileProgress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fp, ok := t.files[file]
	if !ok {
		return FileProgress{}, false
	}
	return *fp, true
}

// GetAllProgress returns every tracked file's current record.
func (t *Tracker) GetAllProgress() []FileProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]FileProgress, 0, len(t.files))
	for _, fp := range t.files {
		out = append(out, *fp)
	}
	return out
}

// GetBatchProgress reports completion fraction across a batch's files.
func (t *Tracker) GetBatchProgress(id string) (completed, total int, overall float64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	batch, exists := t.batches[id]
	if !exists {
		return 0, 0, 0, false
	}
	total = len(batch.Files)
	var sum float64
	for _, f := range batch.Files {
		fp, tracked := t.files[f]
		if !tracked {
			continue
		}
		sum += fp.Overall
		if fp.Status == StatusCompleted {
			completed++
		}
	}
	if total > 0 {
		overall = sum / float64(total)
	}
	return completed, total, overall, true
}

// SystemMetrics adds host resource readings and derived throughput rates
// to the raw file/batch counts.
type SystemMetrics struct {
	TotalFiles     int     `json:"total_files"`
	CompletedFiles int     `json:"completed_files"`
	FailedFiles    int     `json:"failed_files"`
	RunningFiles   int     `json:"running_files"`
	FilesPerMinute float64 `json:"files_per_minute"`
	MBPerMinute    float64 `json:"mb_per_minute"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryPercent  float64 `json:"memory_percent"`
	DiskPercent    float64 `json:"disk_percent"`
}

func weightedOverall(progs map[Stage]float64) float64 {
	var sum float64
	for _, stage := range stageOrder {
		sum += stageWeights[stage] * progs[stage]
	}
	if sum < 0 {
		sum = 0
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

func (t *Tracker) notifyProgress(fp FileProgress) {
	for _, cb := range t.progressSubs {
		t.safeCall(func() { cb(fp) })
	}
}

func (t *Tracker) notifyCompletion(fp FileProgress) {
	for _, cb := range t.completionSubs {
		t.safeCall(func() { cb(fp) })
	}
}

func (t *Tracker) notifyError(file string, err error) {
	for _, cb := range t.errorSubs {
		t.safeCall(func() { cb(file, err) })
	}
}

// safeCall dispatches a subscriber synchronously, recovering a panic so one
// misbehaving subscriber can never take down the pipeline.
func (t *Tracker) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Errorf("progress: subscriber panicked: %v", r)
		}
	}()
	fn()
}

type persistedState struct {
	Files   map[string]*FileProgress  `json:"files"`
	Batches map[string]*BatchProgress `json:"batches"`
}

// save atomically writes the tracker's full state to persistPath.
func (t *Tracker) save() error {
	t.mu.RLock()
	state := persistedState{Files: t.files, Batches: t.batches}
	data, err := json.MarshalIndent(state, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := t.persistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, t.persistPath)
}

// loadFromDisk restores prior state on startup. In-flight (running) files
// at the time of the last save are restored as pending;
// completed/failed records are kept as-is for reporting.
func (t *Tracker) loadFromDisk() {
	if t.persistPath == "" {
		return
	}
	data, err := os.ReadFile(t.persistPath)
	if err != nil {
		return
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		t.log.Warnf("progress: corrupt persisted state, starting fresh: %v", err)
		return
	}

	for name, fp := range state.Files {
		if fp.Status == StatusRunning {
			fp.Status = StatusPending
		}
		t.files[name] = fp
	}
	for id, b := range state.Batches {
		t.batches[id] = b
	}
}
