// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/northbound/rag-core/internal/logger"
	"github.com/northbound/rag-core/internal/queue"
)

// HandlerFunc processes a job. It should return an error if processing fails.
type HandlerFunc func(ctx context.Context, job queue.Job) error

// StartWorkers runs workerCount goroutines draining q, each applying
// handler to every job it dequeues, until ctx is cancelled. This is the
// bounded-concurrency worker-pool shape used around suspending
// network/IO calls: synchronous handler invocations from a fixed pool of
// goroutines, no implicit event loop.
func StartWorkers(ctx context.Context, q queue.Queue, handler HandlerFunc, workerCount int) error {
	log := logger.GetDefault()
	log.Printf("worker: starting pool workerCount=%d", workerCount)

	var wg sync.WaitGroup
	wg.Add(workerCount)

	for i := 0; i < workerCount; i++ {
		workerID := i + 1
		go func() {
			defer wg.Done()
			workerLoop(ctx, q, handler, workerID)
		}()
	}

	wg.Wait()
	log.Printf("worker: pool stopped")
	return nil
}

// workerLoop is the main loop for a single worker.
func workerLoop(ctx context.Context, q queue.Queue, handler HandlerFunc, workerID int) {
	log := logger.GetDefault()
	log.Debugf("worker: %d started", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Debugf("worker: %d stopping, context cancelled", workerID)
			return
		default:
		}

		job, err := q.Dequeue(ctx)
		if err != nil {
			if err == context.Canceled || err == context.DeadlineExceeded {
				log.Debugf("worker: %d context cancelled during dequeue", workerID)
				return
			}
			log.Warnf("worker: %d dequeue error: %v, continuing", workerID, err)
			continue
		}

		if err := handler(ctx, job); err != nil {
			log.LogError(fmt.Sprintf("worker: %d handler error for job type=%s", workerID, job.Type), err)
			continue
		}
	}
}
