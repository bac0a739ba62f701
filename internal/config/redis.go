// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"context"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/rag-core/internal/logger"
)

// NewRedisClient builds the one Redis connection shared by the
// conversation checkpoint store (conversation.RedisCheckpointStore) and
// the durable ingestion queue (ingest.QueueDispatcher): both are keyed
// namespaces on the same client rather than separate connections, since
// single-node deployments have no reason to split them.
//
// Reads REDIS_ADDR (default 127.0.0.1:6379), REDIS_DB (default 0), and
// REDIS_PASSWORD (optional).
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	log := logger.GetDefault()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	dbStr := os.Getenv("REDIS_DB")
	if dbStr == "" {
		dbStr = "0"
	}
	db, err := strconv.Atoi(dbStr)
	if err != nil {
		log.Warnf("config: invalid REDIS_DB value %q, using 0", dbStr)
		db = 0
	}

	password := os.Getenv("REDIS_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("config: redis ping failed for %s: %v", addr, err)
		return nil, err
	}

	log.Printf("config: connected to redis at %s db=%d", addr, db)
	return client, nil
}
