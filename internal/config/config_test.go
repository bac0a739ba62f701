// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"testing"
	"time"

	"github.com/northbound/rag-core/internal/conversation"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Backend.Type != "index" {
		t.Errorf("backend.type = %q, want index", cfg.Backend.Type)
	}
	if cfg.Index.Dimension != 384 {
		t.Errorf("index.dimension = %d, want 384", cfg.Index.Dimension)
	}
	if cfg.Index.FlatMaxPopulation != 10_000 {
		t.Errorf("index.flat_max_population = %d, want 10000", cfg.Index.FlatMaxPopulation)
	}
	if cfg.Ingest.MaxFileSizeMB != 100 {
		t.Errorf("ingest.max_file_size_mb = %d, want 100", cfg.Ingest.MaxFileSizeMB)
	}
	if cfg.Watcher.MaxConcurrent != 3 {
		t.Errorf("watcher.max_concurrent = %d, want 3", cfg.Watcher.MaxConcurrent)
	}
	if cfg.Chat.Mode != string(conversation.ModeAPISingleTurn) {
		t.Errorf("chat.mode = %q, want api_single_turn", cfg.Chat.Mode)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RAG_BACKEND_TYPE", "qdrant")
	t.Setenv("RAG_CHUNKER_SIZE", "500")
	t.Setenv("RAG_WATCHER_RESCAN_INTERVAL", "30s")
	t.Setenv("RAG_INDEX_SOFT_REBUILD_DELETED_FRACTION", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Backend.Type != "qdrant" {
		t.Errorf("backend.type = %q, want qdrant", cfg.Backend.Type)
	}
	if cfg.Chunker.Size != 500 {
		t.Errorf("chunker.size = %d, want 500", cfg.Chunker.Size)
	}
	if cfg.Watcher.RescanInterval != 30*time.Second {
		t.Errorf("watcher.rescan_interval = %v, want 30s", cfg.Watcher.RescanInterval)
	}
	if cfg.Index.SoftRebuildDeletedFraction != 0.25 {
		t.Errorf("index.soft_rebuild_deleted_fraction = %v, want 0.25", cfg.Index.SoftRebuildDeletedFraction)
	}
	if got := cfg.VectorIndexConfig(); got.SoftRebuildDeletedFraction != 0.25 {
		t.Errorf("VectorIndexConfig().SoftRebuildDeletedFraction = %v, want 0.25", got.SoftRebuildDeletedFraction)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("RAG_BACKEND_TYPE", "faiss")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend type")
	}
}

func TestLoadRejectsUnknownChatMode(t *testing.T) {
	t.Setenv("RAG_CHAT_MODE", "streaming")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown chat mode")
	}
}
