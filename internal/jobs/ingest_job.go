// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/northbound/rag-core/internal/logger"
	"github.com/northbound/rag-core/internal/queue"
)

// IngestFilePayload is the durable work item behind a queued ingestion
// request: a single file to be run through the
// engine's pipeline. Enqueuing it (rather than calling the engine inline)
// lets a directory walk survive a process restart mid-batch: the job sits
// in Redis until a worker claims it.
type IngestFilePayload struct {
	Path        string         `json:"path"`
	BatchID     string         `json:"batchId,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	RequestedAt time.Time      `json:"requestedAt"`
}

const JobTypeIngestFile = "ingest_file"

// IngestFunc adapts ingest.Engine.IngestFile to the shape a queued job
// needs. Declared as a function type rather than an interface so this
// package stays free of a dependency on internal/ingest (which has no
// reason to depend on the queue); callers wrap engine.IngestFile and
// discard the FileResult they don't need here.
type IngestFunc func(ctx context.Context, path string, userMeta map[string]any) error

// NewIngestFileJob builds the queue.Job envelope for a single file.
func NewIngestFileJob(payload IngestFilePayload) (queue.Job, error) {
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = time.Now()
	}
	return queue.NewJob(JobTypeIngestFile, payload)
}

// EnqueueIngestFile pushes a single-file ingestion job onto q.
func EnqueueIngestFile(ctx context.Context, q queue.Queue, payload IngestFilePayload) error {
	job, err := NewIngestFileJob(payload)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, job)
}

// HandleIngestFile decodes an ingest_file job and runs it through engine.
// Per-file failures are logged and returned to the caller (StartWorkers'
// handler loop) rather than panicking the worker goroutine; one bad file
// in the queue must not take down the pool, mirroring the engine's own
// per-file isolation during directory ingestion.
func HandleIngestFile(ctx context.Context, job queue.Job, ingest IngestFunc) error {
	log := logger.GetDefault()
	if job.Type != JobTypeIngestFile {
		log.Warnf("jobs: ignoring job of type %s, expected %s", job.Type, JobTypeIngestFile)
		return nil
	}
	var payload IngestFilePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Errorf("jobs: corrupt ingest_file payload: %v", err)
		return err
	}
	if err := ingest(ctx, payload.Path, payload.Meta); err != nil {
		log.LogError(fmt.Sprintf("jobs: ingest_file failed for %s", payload.Path), err)
		return err
	}
	log.Printf("jobs: ingest_file completed for %s (batch=%s)", payload.Path, payload.BatchID)
	return nil
}
