// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/embeddings"
	"github.com/northbound/rag-core/internal/events"
	"github.com/northbound/rag-core/internal/logger"
	"github.com/northbound/rag-core/internal/metadata"
	"github.com/northbound/rag-core/internal/parser"
	"github.com/northbound/rag-core/internal/processor"
	"github.com/northbound/rag-core/internal/progress"
	"github.com/northbound/rag-core/internal/verifier"
)

// FileResult is what IngestFile and IngestText return.
type FileResult struct {
	Status           string   `json:"status"`
	Reason           string   `json:"reason,omitempty"`
	DocID            string   `json:"doc_id,omitempty"`
	ChunksCreated    int      `json:"chunks_created,omitempty"`
	VectorsStored    int      `json:"vectors_stored,omitempty"`
	IsUpdate         bool     `json:"is_update,omitempty"`
	OldVectorsDeleted int     `json:"old_vectors_deleted,omitempty"`
	DuplicateFileID  string   `json:"duplicate_file_id,omitempty"`
	VectorIDs        []string `json:"vector_ids,omitempty"`
}

// Config bounds the engine's file-size acceptance.
type Config struct {
	MaxFileSizeMB int
}

// DefaultConfig sets the default 100MB file-size ceiling.
func DefaultConfig() Config {
	return Config{MaxFileSizeMB: 100}
}

// Engine orchestrates the ingestion pipeline: it owns all side effects to
// the vector backend and MetadataManager, orchestrating processor
// selection, chunking, embedding, and storage for one file, one text blob,
// or a whole directory tree at a time.
type Engine struct {
	cfg      Config
	backend  VectorBackend
	meta     *metadata.Manager
	registry *parser.Registry
	chunker  processor.TextChunker
	embedder embeddings.Embedder
	files    *FileMetadataStore
	tracker  *progress.Tracker
	verify   *verifier.Verifier
	bus      *events.Bus
	log      *logger.Logger
}

// New constructs an Engine from its collaborators. tracker and verify may
// be nil to disable progress reporting / quality gating.
func New(cfg Config, backend VectorBackend, metaMgr *metadata.Manager, registry *parser.Registry, chunker processor.TextChunker, embedder embeddings.Embedder, files *FileMetadataStore, tracker *progress.Tracker, verify *verifier.Verifier, bus *events.Bus) *Engine {
	return &Engine{
		cfg:      cfg,
		backend:  backend,
		meta:     metaMgr,
		registry: registry,
		chunker:  chunker,
		embedder: embedder,
		files:    files,
		tracker:  tracker,
		verify:   verify,
		bus:      bus,
		log:      logger.GetDefault(),
	}
}

// IngestFile runs the full validate-extract-chunk-embed-store flow for path.
func (e *Engine) IngestFile(ctx context.Context, path string, userMeta map[string]any) (FileResult, error) {
	if e.tracker != nil {
		e.tracker.StartFile(path)
	}
	report := &verifier.Report{File: path}

	e.bus.Publish(events.TypeFileProcessingStarted, map[string]any{"path": path})

	result, err := e.ingestFileInner(ctx, path, userMeta, report)
	e.finishTracking(path, result, err)
	if e.verify != nil {
		e.verify.Finalize(*report)
	}

	switch {
	case err != nil:
		e.bus.Publish(events.TypeFileProcessingFailed, map[string]any{"path": path, "error": err.Error()})
	case result.Status == "success":
		e.bus.Publish(events.TypeFileProcessingCompleted, map[string]any{"path": path, "doc_id": result.DocID, "chunks": result.ChunksCreated})
	}
	return result, err
}

func (e *Engine) finishTracking(file string, result FileResult, err error) {
	if e.tracker == nil {
		return
	}
	if err != nil {
		e.tracker.FailFile(file, err, "")
		return
	}
	if result.Status == "success" {
		e.tracker.CompleteFile(file, map[string]any{"chunks": result.ChunksCreated, "vectors": result.VectorsStored})
	}
}

func (e *Engine) ingestFileInner(ctx context.Context, path string, userMeta map[string]any, report *verifier.Report) (FileResult, error) {
	// Step 1: validate existence and size.
	if e.verify != nil {
		e.verify.VerifyFileValidation(report, path)
	}
	if e.tracker != nil {
		e.tracker.UpdateStage(path, progress.StageValidating, 0.5, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileResult{}, apierr.Wrap(apierr.CodeIngestionError, "stat file", err)
	}
	maxBytes := int64(e.cfg.MaxFileSizeMB) * 1024 * 1024
	if info.Size() > maxBytes {
		return FileResult{}, apierr.New(apierr.CodeIngestionError, fmt.Sprintf("file exceeds max size of %d MB", e.cfg.MaxFileSizeMB))
	}
	if e.tracker != nil {
		e.tracker.CompleteStage(path, progress.StageValidating)
	}

	// Step 2: content hash / duplicate detection.
	content, err := os.ReadFile(path)
	if err != nil {
		return FileResult{}, apierr.Wrap(apierr.CodeIngestionError, "read file", err)
	}
	hash := contentHash(content)
	if dup, ok := e.files.FindByHash(hash); ok {
		return FileResult{Status: "skipped", Reason: "duplicate", DuplicateFileID: dup.DocID}, nil
	}

	filename := filepath.Base(path)
	fileMeta := map[string]any{"doc_path": path, "filename": filename, "file_path": path}

	// Step 3: update semantics, find prior vectors for this path.
	isUpdate := false
	oldVectorsDeleted := 0
	docID := ""
	if prior, ok := e.files.FindByPath(path, filename, path); ok {
		isUpdate = true
		docID = prior.DocID
		if err := e.backend.DeleteVectors(ctx, prior.VectorIDs); err != nil {
			e.log.Warnf("ingest: failed to delete prior vectors for %s: %v", path, err)
		} else {
			oldVectorsDeleted = len(prior.VectorIDs)
		}
	}
	if docID == "" {
		docID = e.meta.GenerateDocID(fileMeta, content)
	}

	// Step 4: processor selection and extraction.
	if e.tracker != nil {
		e.tracker.UpdateStage(path, progress.StageExtracting, 0.2, nil)
	}
	var endExtraction func()
	if e.verify != nil {
		endExtraction = e.verify.StageTimer(path, verifier.StageContentExtraction)
	}
	procResult, err := e.registry.Process(path, userMeta)
	if endExtraction != nil {
		endExtraction()
	}
	matched := e.registry.CanProcess(path)
	if e.verify != nil {
		e.verify.VerifyProcessorSelection(report, filepath.Ext(path), matched)
	}
	if err != nil {
		return FileResult{}, apierr.Wrap(apierr.CodeIngestionError, "extract content", err)
	}
	if e.verify != nil {
		e.verify.VerifyContentExtraction(report, procResult.Status, len(procResult.Text))
	}
	if e.tracker != nil {
		e.tracker.CompleteStage(path, progress.StageExtracting)
	}

	// Step 5/6: chunk, or use pre-chunked content; validate shapes.
	if e.tracker != nil {
		e.tracker.UpdateStage(path, progress.StageChunking, 0.2, nil)
	}
	chunks, err := e.resolveChunks(procResult, fileMeta)
	if err != nil {
		return FileResult{}, err
	}
	if len(chunks) == 0 {
		if procResult.Text == "" && len(procResult.Chunks) == 0 {
			return FileResult{Status: "skipped", Reason: "no_content"}, nil
		}
		return FileResult{Status: "skipped", Reason: "no_chunks"}, nil
	}
	if e.verify != nil {
		e.verify.VerifyTextChunking(report, chunkLengths(chunks), countWithMetadata(chunks))
		e.verify.VerifyChunkOverlap(report, chunkTextsOf(chunks), processor.DefaultChunkOverlap/2)
	}
	if e.tracker != nil {
		e.tracker.CompleteStage(path, progress.StageChunking)
	}

	storedResult, err := e.storeChunks(ctx, docID, chunks, fileMeta, userMeta, path, report)
	if err != nil {
		return FileResult{}, err
	}

	if err := e.files.Put(FileRecord{
		DocID:       docID,
		ContentHash: hash,
		DocPath:     path,
		Filename:    filename,
		FilePath:    path,
		ChunkCount:  len(chunks),
		VectorIDs:   storedResult.VectorIDs,
		IngestedAt:  time.Now(),
	}); err != nil {
		e.log.Warnf("ingest: failed to persist file record for %s: %v", path, err)
	}

	storedResult.IsUpdate = isUpdate
	storedResult.OldVectorsDeleted = oldVectorsDeleted
	storedResult.DocID = docID
	return storedResult, nil
}

// IngestText runs the same pipeline as IngestFile but skips file I/O.
func (e *Engine) IngestText(ctx context.Context, text string, meta map[string]any) (FileResult, error) {
	docID, _ := stringField(meta, "doc_path")
	if docID == "" {
		docID, _ = stringField(meta, "title")
	}
	if docID == "" {
		docID = "text_document"
	}
	docID = e.meta.GenerateDocID(mergeInto(map[string]any{"doc_id": docID}, meta), []byte(text))

	report := &verifier.Report{File: docID}
	pieces, err := e.chunker.ChunkWithMetadata(text, meta)
	if err != nil {
		return FileResult{}, apierr.Wrap(apierr.CodeChunkingError, "chunk text", err)
	}
	if len(pieces) == 0 {
		return FileResult{Status: "skipped", Reason: "no_chunks"}, nil
	}
	if e.verify != nil {
		e.verify.VerifyTextChunking(report, chunkLengths(pieces), countWithMetadata(pieces))
		e.verify.VerifyChunkOverlap(report, chunkTextsOf(pieces), processor.DefaultChunkOverlap/2)
	}

	result, err := e.storeChunks(ctx, docID, pieces, meta, nil, docID, report)
	if err != nil {
		return FileResult{}, err
	}
	result.DocID = docID
	if e.verify != nil {
		e.verify.Finalize(*report)
	}
	return result, nil
}

// IngestDirectory enumerates files under root matching patterns (glob
// patterns against the base name; nil/empty means every supported file)
// and ingests them sequentially, recording a batch in the progress
// tracker. Concurrency across a batch is the caller's responsibility
// (watcher.Monitor bounds it via semaphore).
func (e *Engine) IngestDirectory(ctx context.Context, root string, patterns []string, batchID string) ([]FileResult, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if parser.IsTemporaryFile(path) {
			return nil
		}
		if !e.registry.CanProcess(path) {
			return nil
		}
		if len(patterns) > 0 && !matchesAnyPattern(filepath.Base(path), patterns) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeIngestionError, "walk directory", err)
	}

	if e.tracker != nil && batchID != "" {
		e.tracker.CreateBatch(batchID, paths)
	}

	results := make([]FileResult, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			break
		}
		res, err := e.IngestFile(ctx, p, nil)
		if err != nil {
			e.log.Warnf("ingest: %s failed: %v", p, err)
			results = append(results, FileResult{Status: "failed", Reason: err.Error()})
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// DeleteFile logically deletes all vectors tracked for path, matching by
// doc_path, then filename, then file_path, and falling back to the
// backend's doc_path lookup. A nested original_path is not consulted.
func (e *Engine) DeleteFile(ctx context.Context, path string, docPath string) error {
	lookupPath := docPath
	if lookupPath == "" {
		lookupPath = path
	}
	filename := filepath.Base(path)

	rec, ok := e.files.FindByPath(lookupPath, filename, path)
	if !ok {
		ids, err := e.backend.FindVectorsByDocPath(ctx, lookupPath)
		if err != nil {
			return apierr.Wrap(apierr.CodeIngestionError, "find vectors by doc path", err)
		}
		if len(ids) == 0 {
			return apierr.New(apierr.CodeNotFound, fmt.Sprintf("no tracked vectors for %q", path))
		}
		if err := e.backend.DeleteVectors(ctx, ids); err != nil {
			return apierr.Wrap(apierr.CodeIngestionError, "delete vectors", err)
		}
		e.bus.Publish(events.TypeFileDeleted, map[string]any{"path": path})
		return nil
	}

	if err := e.backend.DeleteVectors(ctx, rec.VectorIDs); err != nil {
		return apierr.Wrap(apierr.CodeIngestionError, "delete vectors", err)
	}
	if err := e.files.Delete(rec.DocID); err != nil {
		e.log.Warnf("ingest: failed to remove file record for %s: %v", path, err)
	}
	e.bus.Publish(events.TypeFileDeleted, map[string]any{"path": path, "doc_id": rec.DocID})
	return nil
}

// resolveChunks prefers chunks the processor already produced; otherwise
// it chunks the extracted plain text with the configured Chunker.
func (e *Engine) resolveChunks(result parser.Result, fileMeta map[string]any) ([]processor.Chunk, error) {
	if len(result.Chunks) > 0 {
		out := make([]processor.Chunk, len(result.Chunks))
		for i, text := range result.Chunks {
			out[i] = processor.Chunk{Text: text, ChunkIndex: i, Metadata: cloneMap(fileMeta)}
		}
		return out, nil
	}
	if result.Text == "" {
		return nil, nil
	}
	return e.chunker.ChunkWithMetadata(result.Text, fileMeta)
}

// storeChunks embeds and persists a resolved chunk set under docID,
// merging metadata per chunk and returning the stored result.
func (e *Engine) storeChunks(ctx context.Context, docID string, chunks []processor.Chunk, fileMeta, userMeta map[string]any, sourceLabel string, report *verifier.Report) (FileResult, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	if e.tracker != nil {
		e.tracker.UpdateStage(sourceLabel, progress.StageEmbedding, 0.1, nil)
	}
	var endEmbedding func()
	if e.verify != nil {
		endEmbedding = e.verify.StageTimer(sourceLabel, verifier.StageEmbeddingGen)
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if endEmbedding != nil {
		endEmbedding()
	}
	if err != nil {
		return FileResult{}, apierr.Wrap(apierr.CodeEmbeddingError, "embed chunks", err)
	}
	if e.verify != nil {
		e.verify.VerifyEmbeddingGeneration(report, len(chunks), vectors)
	}
	if e.tracker != nil {
		e.tracker.CompleteStage(sourceLabel, progress.StageEmbedding)
	}

	metas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		base := map[string]any{
			"doc_id":          docID,
			"chunk_index":     i,
			"total_chunks":    len(chunks),
			"embedding_model": e.embedder.ModelName(),
			"ingested_at":     time.Now().Format(time.RFC3339Nano),
		}
		rec, _ := e.meta.Merge(fileMeta, userMeta, c.Metadata, base)
		rec.ChunkIndex = i
		rec.VectorID = metadata.GenerateVectorID(docID, i)
		rec = e.meta.PrepareForStorage(rec)
		metas[i] = rec.ToFlatMap()
	}

	if e.tracker != nil {
		e.tracker.UpdateStage(sourceLabel, progress.StageStoring, 0.1, nil)
	}
	vectorIDs, err := e.backend.AddVectors(ctx, vectors, metas)
	if err != nil {
		return FileResult{}, apierr.Wrap(apierr.CodeVectorStoreError, "store vectors", err)
	}
	if e.tracker != nil {
		e.tracker.CompleteStage(sourceLabel, progress.StageStoring)
		e.tracker.CompleteStage(sourceLabel, progress.StageIndexing)
	}

	if e.verify != nil && len(vectorIDs) > 0 {
		_, retrievable, _ := e.backend.GetMetadata(ctx, vectorIDs[0])
		e.verify.VerifyVectorStorage(report, vectorIDs[0], retrievable)
		e.verify.VerifyMetadataStorage(report, vectorIDs[0], retrievable)
	}
	if e.tracker != nil {
		e.tracker.CompleteStage(sourceLabel, progress.StageFinalizing)
	}

	return FileResult{
		Status:        "success",
		ChunksCreated: len(chunks),
		VectorsStored: len(vectorIDs),
		VectorIDs:     vectorIDs,
	}, nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func chunkLengths(chunks []processor.Chunk) []int {
	lens := make([]int, len(chunks))
	for i, c := range chunks {
		lens[i] = len(c.Text)
	}
	return lens
}

func chunkTextsOf(chunks []processor.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}

func countWithMetadata(chunks []processor.Chunk) int {
	n := 0
	for _, c := range chunks {
		if len(c.Metadata) > 0 {
			n++
		}
	}
	return n
}

func matchesAnyPattern(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeInto(dst, src map[string]any) map[string]any {
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
