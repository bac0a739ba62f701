// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/rag-core/internal/logger"
)

// RedisQueue implements Queue using a Redis list.
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *logger.Logger
}

// NewRedisQueue creates a new Redis-backed queue.
// client: the Redis client to use
// key: the Redis key name for the queue (e.g., "jobs:default")
func NewRedisQueue(client *redis.Client, key string) (Queue, error) {
	if key == "" {
		key = "jobs:default"
	}

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisQueue{client: client, key: key, log: logger.GetDefault()}, nil
}

// Enqueue adds a job to the queue using RPUSH.
func (r *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		r.log.Errorf("queue: failed to marshal job type=%s: %v", job.Type, err)
		return err
	}

	if err := r.client.RPush(ctx, r.key, data).Err(); err != nil {
		r.log.Errorf("queue: failed to push to %s: %v", r.key, err)
		return err
	}

	return nil
}

// Dequeue blocks until a job is available using BLPOP, then returns it.
func (r *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	type result struct {
		val []string
		err error
	}
	resultChan := make(chan result, 1)

	go func() {
		val, err := r.client.BLPop(ctx, 0, r.key).Result()
		resultChan <- result{val: val, err: err}
	}()

	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case res := <-resultChan:
		if res.err != nil {
			if res.err == redis.Nil {
				return Job{}, ctx.Err()
			}
			r.log.Errorf("queue: failed to pop from %s: %v", r.key, res.err)
			return Job{}, res.err
		}

		if len(res.val) < 2 {
			return Job{}, fmt.Errorf("queue: invalid BLPOP result from %s", r.key)
		}

		data := res.val[1]
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			r.log.Errorf("queue: corrupt job payload on %s: %v", r.key, err)
			return Job{}, err
		}

		return job, nil
	}
}
