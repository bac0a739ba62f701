// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/northbound/rag-core/internal/queue"
)

type memQueue struct {
	jobs []queue.Job
}

func (m *memQueue) Enqueue(_ context.Context, job queue.Job) error {
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *memQueue) Dequeue(ctx context.Context) (queue.Job, error) {
	if len(m.jobs) == 0 {
		return queue.Job{}, context.Canceled
	}
	job := m.jobs[0]
	m.jobs = m.jobs[1:]
	return job, nil
}

func TestEnqueueAndHandleIngestFile(t *testing.T) {
	q := &memQueue{}
	ctx := context.Background()

	if err := EnqueueIngestFile(ctx, q, IngestFilePayload{
		Path:    "/docs/a.txt",
		BatchID: "batch-1",
		Meta:    map[string]any{"title": "A"},
	}); err != nil {
		t.Fatalf("EnqueueIngestFile: %v", err)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job.Type != JobTypeIngestFile {
		t.Fatalf("job type = %q, want %q", job.Type, JobTypeIngestFile)
	}

	var gotPath string
	handler := func(_ context.Context, path string, meta map[string]any) error {
		gotPath = path
		if meta["title"] != "A" {
			t.Errorf("meta title = %v, want A", meta["title"])
		}
		return nil
	}

	if err := HandleIngestFile(ctx, job, handler); err != nil {
		t.Fatalf("HandleIngestFile: %v", err)
	}
	if gotPath != "/docs/a.txt" {
		t.Errorf("gotPath = %q, want /docs/a.txt", gotPath)
	}
}

func TestHandleIngestFilePropagatesError(t *testing.T) {
	job, err := NewIngestFileJob(IngestFilePayload{Path: "/docs/b.txt"})
	if err != nil {
		t.Fatalf("NewIngestFileJob: %v", err)
	}

	wantErr := errors.New("boom")
	err = HandleIngestFile(context.Background(), job, func(context.Context, string, map[string]any) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestHandleIngestFileIgnoresOtherJobTypes(t *testing.T) {
	called := false
	err := HandleIngestFile(context.Background(), queue.Job{Type: "something_else"}, func(context.Context, string, map[string]any) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if called {
		t.Error("handler should not be invoked for a foreign job type")
	}
}
