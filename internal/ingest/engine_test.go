// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/northbound/rag-core/internal/embeddings"
	"github.com/northbound/rag-core/internal/events"
	"github.com/northbound/rag-core/internal/metadata"
	"github.com/northbound/rag-core/internal/parser"
	"github.com/northbound/rag-core/internal/processor"
	"github.com/northbound/rag-core/internal/vectorindex"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	idx := vectorindex.NewIndex(8, vectorindex.DefaultConfig())
	backend := IndexBackend{Index: idx}
	return New(
		DefaultConfig(),
		backend,
		metadata.NewManager(),
		parser.NewRegistry(),
		processor.NewChunker(),
		embeddings.NewMockEmbedder(8),
		NewFileMetadataStore(""),
		nil,
		nil,
		events.NewBus(),
	)
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestIngestFileDuplicateDetection(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.txt", "Hello world.")
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.IngestFile(ctx, path, nil)
	if err != nil {
		t.Fatalf("first IngestFile: %v", err)
	}
	if first.Status != "success" || first.ChunksCreated != 1 || first.VectorsStored != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := e.IngestFile(ctx, path, nil)
	if err != nil {
		t.Fatalf("second IngestFile: %v", err)
	}
	if second.Status != "skipped" || second.Reason != "duplicate" {
		t.Fatalf("expected duplicate skip, got %+v", second)
	}
	if second.DuplicateFileID != first.DocID {
		t.Fatalf("duplicate_file_id = %q, want %q", second.DuplicateFileID, first.DocID)
	}
}

func TestIngestFileUpdateReplacesVectors(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "doc.txt", "Hello world.")
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.IngestFile(ctx, path, nil); err != nil {
		t.Fatalf("initial IngestFile: %v", err)
	}

	writeTempFile(t, dir, "doc.txt", "Hello universe.")
	updated, err := e.IngestFile(ctx, path, nil)
	if err != nil {
		t.Fatalf("update IngestFile: %v", err)
	}
	if !updated.IsUpdate || updated.OldVectorsDeleted == 0 {
		t.Fatalf("expected an update with deleted vectors, got %+v", updated)
	}
}
