// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job is one durable work item: the ingestion backlog serializes these
// into Redis so in-flight work survives a process restart.
type Job struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewJob marshals payload into a Job envelope of the given type, stamped
// with the current time.
func NewJob(jobType string, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	return Job{Type: jobType, Payload: data, CreatedAt: time.Now()}, nil
}

// Queue defines the interface for job queues.
type Queue interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available, then returns it.
	// Returns an error if the context is cancelled or if the operation fails.
	Dequeue(ctx context.Context) (Job, error)
}
