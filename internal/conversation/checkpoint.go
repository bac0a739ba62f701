// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/logger"
)

// CheckpointStore persists ConversationState by thread so a process
// restart or a load-balanced follow-up request can resume a thread
// exactly where the last transition left it ("checkpointing is a
// pure function (state, event) -> state; persist after every
// transition"). Implementations must be safe for concurrent use and must
// treat Put as an idempotent overwrite; at-least-once delivery from a
// retrying caller must never corrupt the stored state.
type CheckpointStore interface {
	Get(ctx context.Context, threadID string) (*State, bool, error)
	Put(ctx context.Context, state *State) error
	Delete(ctx context.Context, threadID string) error
	List(ctx context.Context) ([]string, error)
}

const checkpointKeyPrefix = "conversation:checkpoint:"

func checkpointKey(threadID string) string {
	return checkpointKeyPrefix + threadID
}

// RedisCheckpointStore is the production CheckpointStore, grounded on the
// same client/key conventions as queue.RedisQueue: one key per thread,
// JSON-encoded, scanned rather than indexed for List since thread counts
// are expected to stay in the thousands, not millions.
type RedisCheckpointStore struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCheckpointStore wraps an already-connected client, matching
// config.NewRedisClient's contract of handing back a live connection.
func NewRedisCheckpointStore(client *redis.Client) *RedisCheckpointStore {
	return &RedisCheckpointStore{client: client, log: logger.GetDefault()}
}

func (r *RedisCheckpointStore) Get(ctx context.Context, threadID string) (*State, bool, error) {
	raw, err := r.client.Get(ctx, checkpointKey(threadID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		r.log.Errorf("checkpoint: get failed for %s: %v", threadID, err)
		return nil, false, apierr.Wrap(apierr.CodeConversationError, "checkpoint get", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		r.log.Errorf("checkpoint: corrupt state for %s: %v", threadID, err)
		return nil, false, apierr.Wrap(apierr.CodeConversationError, "checkpoint decode", err)
	}
	return &state, true, nil
}

func (r *RedisCheckpointStore) Put(ctx context.Context, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apierr.Wrap(apierr.CodeConversationError, "checkpoint encode", err)
	}
	if err := r.client.Set(ctx, checkpointKey(state.ThreadID), data, 0).Err(); err != nil {
		r.log.Errorf("checkpoint: put failed for %s: %v", state.ThreadID, err)
		return apierr.Wrap(apierr.CodeConversationError, "checkpoint put", err)
	}
	return nil
}

func (r *RedisCheckpointStore) Delete(ctx context.Context, threadID string) error {
	if err := r.client.Del(ctx, checkpointKey(threadID)).Err(); err != nil {
		return apierr.Wrap(apierr.CodeConversationError, "checkpoint delete", err)
	}
	return nil
}

func (r *RedisCheckpointStore) List(ctx context.Context) ([]string, error) {
	var threadIDs []string
	iter := r.client.Scan(ctx, 0, checkpointKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		threadIDs = append(threadIDs, iter.Val()[len(checkpointKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, apierr.Wrap(apierr.CodeConversationError, "checkpoint list", err)
	}
	return threadIDs, nil
}

// MemoryCheckpointStore is an in-process CheckpointStore for tests and
// for single-process deployments that accept losing in-flight threads on
// restart.
type MemoryCheckpointStore struct {
	mu       sync.RWMutex
	states   map[string]*State
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{states: make(map[string]*State)}
}

func (m *MemoryCheckpointStore) Get(_ context.Context, threadID string) (*State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[threadID]
	if !ok {
		return nil, false, nil
	}
	cp := *s
	return &cp, true, nil
}

func (m *MemoryCheckpointStore) Put(_ context.Context, state *State) error {
	if state == nil || state.ThreadID == "" {
		return fmt.Errorf("checkpoint: state requires a thread id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.ThreadID] = &cp
	return nil
}

func (m *MemoryCheckpointStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, threadID)
	return nil
}

func (m *MemoryCheckpointStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.states))
	for id := range m.states {
		out = append(out, id)
	}
	return out, nil
}

var (
	_ CheckpointStore = (*RedisCheckpointStore)(nil)
	_ CheckpointStore = (*MemoryCheckpointStore)(nil)
)
