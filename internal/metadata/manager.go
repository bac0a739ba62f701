// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
//
// MetadataManager produces a canonical flat MetadataRecord from whatever
// combination of user overrides, document metadata, and chunk metadata the
// ingestion pipeline hands it. It is the component that keeps the rest of
// the system from ever seeing a nested "metadata" key.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/northbound/rag-core/internal/logger"
)

const docIDCacheSize = 4096

// Manager normalizes, validates, merges, and generates ids for metadata
// records. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	idCache  *lru.Cache[string, string]
	clock    func() time.Time
	log      *logger.Logger
}

// NewManager constructs a Manager with an LRU cache keyed by source,
// avoiding repeat doc-id derivation for the same source key.
func NewManager() *Manager {
	cache, _ := lru.New[string, string](docIDCacheSize)
	return &Manager{
		idCache: cache,
		clock:   time.Now,
		log:     logger.GetDefault(),
	}
}

// GenerateDocID derives a deterministic doc_id following the priority order
// existing doc_id -> doc_path stem -> file_path stem -> filename
// stem -> content hash -> title -> timestamp fallback. The source key used
// for caching is whichever field the value was derived from.
func (m *Manager) GenerateDocID(meta map[string]any, content []byte) string {
	sourceKey := docIDSourceKey(meta, content)

	m.mu.Lock()
	if cached, ok := m.idCache.Get(sourceKey); ok {
		m.mu.Unlock()
		return cached
	}
	m.mu.Unlock()

	id := m.deriveDocID(meta, content)

	m.mu.Lock()
	m.idCache.Add(sourceKey, id)
	m.mu.Unlock()

	return id
}

func docIDSourceKey(meta map[string]any, content []byte) string {
	for _, key := range []string{"doc_id", "doc_path", "file_path", "filename"} {
		if v, ok := stringValue(meta, key); ok && v != "" {
			return key + ":" + v
		}
	}
	if len(content) > 0 {
		return "content:" + fmt.Sprintf("%x", sha256.Sum256(content))[:16]
	}
	if v, ok := stringValue(meta, "title"); ok && v != "" {
		return "title:" + v
	}
	return "timestamp"
}

func (m *Manager) deriveDocID(meta map[string]any, content []byte) string {
	if v, ok := stringValue(meta, "doc_id"); ok && v != "" {
		return v
	}
	if v, ok := stringValue(meta, "doc_path"); ok && v != "" {
		return stemPath(v)
	}
	if v, ok := stringValue(meta, "file_path"); ok && v != "" {
		return stemPath(v)
	}
	if v, ok := stringValue(meta, "filename"); ok && v != "" {
		return stemPath(v)
	}
	if len(content) > 0 {
		sum := sha256.Sum256(content)
		return "doc_hash_" + hex.EncodeToString(sum[:])[:8]
	}
	if v, ok := stringValue(meta, "title"); ok && v != "" {
		return sanitizeTitle(v)
	}
	return fmt.Sprintf("doc_%d", m.clock().UnixMicro())
}

func stemPath(p string) string {
	p = filepath.ToSlash(p)
	base := filepath.Base(p)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

func sanitizeTitle(title string) string {
	if len(title) > 50 {
		title = title[:50]
	}
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('_')
		}
	}
	return b.String()
}

// GenerateVectorID builds the "<doc_id>_chunk_<n>" vector_id key.
func GenerateVectorID(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, chunkIndex)
}

// Merge combines metadata maps left-to-right: a later map overrides an
// earlier one on key clash unless the earlier value is non-empty and the
// later one is empty. Nested "metadata" sub-maps from any input are
// flattened in with top-level keys taking precedence; a warning is recorded
// per flatten. The merged result is always validated: its validation
// warnings, and its errors when it fails, are appended to the returned
// warnings. Merge never fails; there is no switch to turn validation off
// or to make a validation failure an error.
func (m *Manager) Merge(dicts ...map[string]any) (Record, []string) {
	var warnings []string
	flat := make(map[string]any)

	for _, d := range dicts {
		if d == nil {
			continue
		}
		if nested, ok := d["metadata"].(map[string]any); ok {
			warnings = append(warnings, "flattened nested metadata key during merge")
			for k, v := range nested {
				flat[k] = v
			}
		}
		for k, v := range d {
			if k == "metadata" {
				continue
			}
			if existing, present := flat[k]; present && isNonEmpty(existing) && !isNonEmpty(v) {
				continue // keep earlier non-empty value over a later empty one
			}
			flat[k] = v
		}
	}

	resolveConflicts(flat, &warnings)

	rec := recordFromMap(flat)
	report := m.Validate(rec)
	warnings = append(warnings, report.Warnings...)
	if !report.OK() {
		warnings = append(warnings, report.Errors...)
	}
	return rec, warnings
}

// resolveConflicts keeps exactly one member of each conflict group, the
// preferred (first-listed) name, folding the deprecated alias's value in
// only if the preferred key is absent.
func resolveConflicts(flat map[string]any, warnings *[]string) {
	for _, group := range conflictGroups {
		preferred, deprecated := group[0], group[1]
		pv, pOK := flat[preferred]
		dv, dOK := flat[deprecated]
		if !pOK && dOK {
			flat[preferred] = dv
			pOK = true
		} else if pOK && dOK && isNonEmpty(pv) {
			*warnings = append(*warnings, fmt.Sprintf("conflict: both %q and %q present, keeping %q", preferred, deprecated, preferred))
		}
		delete(flat, deprecated)
		_ = pOK
	}
}

// Validate reports errors, warnings, and conflict-group clashes for rec.
func (m *Manager) Validate(rec Record) ValidationReport {
	var report ValidationReport

	if strings.TrimSpace(rec.Text) == "" {
		report.Errors = append(report.Errors, "text is required")
	}
	if rec.ChunkIndex < 0 {
		report.Errors = append(report.Errors, "chunk_index must be non-negative")
	}
	if _, ok := rec.Extras["metadata"]; ok {
		report.Errors = append(report.Errors, "nested metadata key is not allowed")
	}
	if len(rec.Text) > 100*1024 {
		report.Warnings = append(report.Warnings, "text exceeds 100KB")
	}

	for key := range rec.Extras {
		if deprecatedKeys[key] {
			report.Warnings = append(report.Warnings, fmt.Sprintf("deprecated key %q present", key))
		}
	}

	for _, group := range conflictGroups {
		_, pOK := fieldPresent(rec, group[0])
		_, dOK := fieldPresent(rec, group[1])
		if pOK && dOK {
			report.Conflicts = append(report.Conflicts, fmt.Sprintf("%s/%s", group[0], group[1]))
		}
	}

	return report
}

// PrepareForStorage stamps schema version and storage timestamp and keeps
// the chunk even when required fields are missing: an empty doc_id gets a
// timestamp-based default, and missing text is logged and stored empty.
// Values are not coerced; Extras are passed through as given.
func (m *Manager) PrepareForStorage(rec Record) Record {
	rec.SchemaVersion = SchemaVersion
	rec.StoredAt = m.clock()

	if strings.TrimSpace(rec.Text) == "" {
		rec.Text = ""
		m.log.Warnf("metadata: text missing for doc_id=%q, storing minimal record", rec.DocID)
	}
	if rec.DocID == "" {
		rec.DocID = fmt.Sprintf("doc_%d", m.clock().UnixMicro())
	}
	return rec
}

// RecoverFromStorage migrates a legacy stored record (schema_version absent
// or 0) by flattening any nested metadata, mapping deprecated keys, and
// coercing chunk_index to int. Only this path may see a nested "metadata"
// key on read.
func (m *Manager) RecoverFromStorage(stored map[string]any) Record {
	flat := make(map[string]any, len(stored))
	for k, v := range stored {
		flat[k] = v
	}

	schemaVersion := 0
	if v, ok := flat["_schema_version"]; ok {
		schemaVersion = toInt(v)
	}

	if schemaVersion == 0 {
		if nested, ok := flat["metadata"].(map[string]any); ok {
			for k, v := range nested {
				if _, exists := flat[k]; !exists {
					flat[k] = v
				}
			}
		}
		delete(flat, "metadata")

		var warnings []string
		resolveConflicts(flat, &warnings)

		if ci, ok := flat["chunk_index"]; ok {
			flat["chunk_index"] = toInt(ci)
		}
	}

	rec := recordFromMap(flat)
	rec.SchemaVersion = SchemaVersion
	return rec
}

func fieldPresent(rec Record, key string) (any, bool) {
	switch key {
	case "filename":
		return rec.Filename, rec.Filename != ""
	case "file_name":
		v, ok := rec.Extras["file_name"]
		return v, ok
	case "doc_id":
		return rec.DocID, rec.DocID != ""
	case "document_id":
		v, ok := rec.Extras["document_id"]
		return v, ok
	case "text":
		return rec.Text, rec.Text != ""
	case "content":
		v, ok := rec.Extras["content"]
		return v, ok
	case "chunk_index":
		return rec.ChunkIndex, true
	case "chunk_id":
		v, ok := rec.Extras["chunk_id"]
		return v, ok
	}
	return nil, false
}

func isNonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []string:
		return len(t) > 0
	case int:
		return t != 0
	}
	return true
}

func stringValue(meta map[string]any, key string) (string, bool) {
	v, ok := meta[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// recordFromMap builds a Record from a flat map, routing known keys to
// struct fields and everything else to Extras.
func recordFromMap(flat map[string]any) Record {
	rec := Record{Extras: make(map[string]any)}

	for k, v := range flat {
		switch k {
		case "vector_id":
			rec.VectorID, _ = v.(string)
		case "doc_id":
			rec.DocID, _ = v.(string)
		case "chunk_index":
			rec.ChunkIndex = toInt(v)
		case "text":
			rec.Text, _ = v.(string)
		case "doc_path":
			rec.DocPath, _ = v.(string)
		case "filename":
			rec.Filename, _ = v.(string)
		case "file_path":
			rec.FilePath, _ = v.(string)
		case "chunk_size":
			rec.ChunkSize = toInt(v)
		case "total_chunks":
			rec.TotalChunks = toInt(v)
		case "source_type":
			rec.SourceType, _ = v.(string)
		case "processor":
			rec.Processor, _ = v.(string)
		case "chunking_method":
			rec.ChunkingMethod, _ = v.(string)
		case "embedding_model":
			rec.EmbeddingModel, _ = v.(string)
		case "title":
			rec.Title, _ = v.(string)
		case "author":
			rec.Author, _ = v.(string)
		case "description":
			rec.Description, _ = v.(string)
		case "tags":
			rec.Tags = toStringSlice(v)
		case "deleted":
			rec.Deleted, _ = v.(bool)
		case "version":
			rec.Version = toInt(v)
		case "_schema_version":
			rec.SchemaVersion = toInt(v)
		case "created_at":
			rec.CreatedAt = toTime(v)
		case "ingested_at":
			rec.IngestedAt = toTime(v)
		case "_stored_at":
			rec.StoredAt = toTime(v)
		default:
			rec.Extras[k] = v
		}
	}
	return rec
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
