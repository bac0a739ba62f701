// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import "time"

// SchemaVersion is written to every record prepared for storage so
// RecoverFromStorage can detect and migrate legacy shapes.
const SchemaVersion = 1

// Record is the canonical flat metadata record.
// Semantic fields are named struct fields; anything the caller supplied
// outside that set lands in Extras, never in a nested map.
type Record struct {
	VectorID       string    `json:"vector_id,omitempty"`
	DocID          string    `json:"doc_id,omitempty"`
	ChunkIndex     int       `json:"chunk_index"`
	Text           string    `json:"text"`
	DocPath        string    `json:"doc_path,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	FilePath       string    `json:"file_path,omitempty"`
	ChunkSize      int       `json:"chunk_size,omitempty"`
	TotalChunks    int       `json:"total_chunks,omitempty"`
	SourceType     string    `json:"source_type,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	IngestedAt     time.Time `json:"ingested_at,omitempty"`
	Processor      string    `json:"processor,omitempty"`
	ChunkingMethod string    `json:"chunking_method,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	Title          string    `json:"title,omitempty"`
	Author         string    `json:"author,omitempty"`
	Description    string    `json:"description,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Deleted        bool      `json:"deleted,omitempty"`
	Version        int       `json:"version,omitempty"`
	SchemaVersion  int       `json:"_schema_version,omitempty"`
	StoredAt       time.Time `json:"_stored_at,omitempty"`

	// Extras carries any pass-through key that is not one of the semantic
	// fields above. It is still flattened on write: no Extras value is ever
	// itself a nested "metadata" map.
	Extras map[string]any `json:"-"`
}

// conflictGroups enumerates the deprecated-vs-preferred key pairs of which
// exactly one member must survive a merge.
var conflictGroups = [][2]string{
	{"filename", "file_name"},
	{"doc_id", "document_id"},
	{"text", "content"},
	{"chunk_index", "chunk_id"},
}

// deprecatedKeys are warned about during validation even when they resolved
// cleanly during merge.
var deprecatedKeys = map[string]bool{
	"file_name":   true,
	"document_id": true,
	"content":     true,
	"chunk_id":    true,
}

// ToFlatMap renders the record as a flat map suitable for a storage payload:
// semantic fields under their canonical keys, Extras keys merged in, and no
// top-level "metadata" key under any circumstance.
func (r Record) ToFlatMap() map[string]any {
	m := make(map[string]any, len(r.Extras)+20)
	for k, v := range r.Extras {
		if k == "metadata" {
			continue
		}
		m[k] = v
	}

	setIfNonZero(m, "vector_id", r.VectorID)
	setIfNonZero(m, "doc_id", r.DocID)
	m["chunk_index"] = r.ChunkIndex
	m["text"] = r.Text
	setIfNonZero(m, "doc_path", r.DocPath)
	setIfNonZero(m, "filename", r.Filename)
	setIfNonZero(m, "file_path", r.FilePath)
	if r.ChunkSize != 0 {
		m["chunk_size"] = r.ChunkSize
	}
	if r.TotalChunks != 0 {
		m["total_chunks"] = r.TotalChunks
	}
	setIfNonZero(m, "source_type", r.SourceType)
	if !r.CreatedAt.IsZero() {
		m["created_at"] = r.CreatedAt.Format(time.RFC3339Nano)
	}
	if !r.IngestedAt.IsZero() {
		m["ingested_at"] = r.IngestedAt.Format(time.RFC3339Nano)
	}
	setIfNonZero(m, "processor", r.Processor)
	setIfNonZero(m, "chunking_method", r.ChunkingMethod)
	setIfNonZero(m, "embedding_model", r.EmbeddingModel)
	setIfNonZero(m, "title", r.Title)
	setIfNonZero(m, "author", r.Author)
	setIfNonZero(m, "description", r.Description)
	if len(r.Tags) > 0 {
		m["tags"] = r.Tags
	}
	m["deleted"] = r.Deleted
	if r.Version != 0 {
		m["version"] = r.Version
	}
	if r.SchemaVersion != 0 {
		m["_schema_version"] = r.SchemaVersion
	}
	if !r.StoredAt.IsZero() {
		m["_stored_at"] = r.StoredAt.Format(time.RFC3339Nano)
	}
	return m
}

func setIfNonZero(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// ValidationReport is the result of Validate.
type ValidationReport struct {
	Errors    []string
	Warnings  []string
	Conflicts []string
}

// OK reports whether the record may be persisted without a fallback.
func (v ValidationReport) OK() bool { return len(v.Errors) == 0 }
