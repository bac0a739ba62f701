// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"

	"github.com/northbound/rag-core/internal/jobs"
	"github.com/northbound/rag-core/internal/queue"
	"github.com/northbound/rag-core/internal/worker"
)

// QueueDispatcher buffers ingest_file work in a durable queue.Queue ahead
// of the Engine, instead of calling IngestFile inline from the directory
// walk or the folder watcher. A crash mid-directory-ingest loses nothing:
// whatever hasn't been dequeued yet is still sitting in Redis when the
// process comes back, so a restart resumes in-flight work the
// same way the vector index and progress store do.
type QueueDispatcher struct {
	engine *Engine
	queue  queue.Queue
}

// NewQueueDispatcher wires an already-constructed Engine to q.
func NewQueueDispatcher(engine *Engine, q queue.Queue) *QueueDispatcher {
	return &QueueDispatcher{engine: engine, queue: q}
}

// Enqueue submits a file for later ingestion instead of running it inline.
func (d *QueueDispatcher) Enqueue(ctx context.Context, path string, meta map[string]any, batchID string) error {
	return jobs.EnqueueIngestFile(ctx, d.queue, jobs.IngestFilePayload{
		Path:    path,
		BatchID: batchID,
		Meta:    meta,
	})
}

// Run starts workerCount goroutines draining the queue into the engine,
// blocking until ctx is cancelled. workerCount bounds this backlog-replay
// path only; the watcher bounds live fsnotify events with its own
// semaphore, so together the two paths can run up to the sum of both
// bounds at once.
func (d *QueueDispatcher) Run(ctx context.Context, workerCount int) error {
	handler := func(ctx context.Context, job queue.Job) error {
		return jobs.HandleIngestFile(ctx, job, func(ctx context.Context, path string, meta map[string]any) error {
			_, err := d.engine.IngestFile(ctx, path, meta)
			return err
		})
	}
	return worker.StartWorkers(ctx, d.queue, handler, workerCount)
}
