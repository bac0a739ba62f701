// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/northbound/rag-core/internal/queue"
)

type memQueue struct {
	jobs chan queue.Job
}

func newMemQueue(capacity int) *memQueue {
	return &memQueue{jobs: make(chan queue.Job, capacity)}
}

func (m *memQueue) Enqueue(_ context.Context, job queue.Job) error {
	m.jobs <- job
	return nil
}

func (m *memQueue) Dequeue(ctx context.Context) (queue.Job, error) {
	select {
	case job := <-m.jobs:
		return job, nil
	case <-ctx.Done():
		return queue.Job{}, ctx.Err()
	}
}

func TestQueueDispatcherEnqueueAndRun(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.txt", "Hello from the queue.")

	e := newTestEngine(t)
	q := newMemQueue(1)
	d := NewQueueDispatcher(e, q)

	ctx := context.Background()
	if err := d.Enqueue(ctx, path, nil, "batch-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(runCtx, 1) }()

	deadline := time.After(1 * time.Second)
	for {
		if ids := e.backend.(IndexBackend).Index.FindVectorsByDocPath(path); len(ids) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for queued file to be ingested")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
