// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package processor

// Chunk is one contiguous text span derived from a single document, per
// the external Chunker contract: chunk_text(text, metadata?) -> [{text,
// chunk_index, metadata}].
type Chunk struct {
	Text       string
	ChunkIndex int
	Metadata   map[string]any
}

// TextChunker is the external Chunker interface collaborators implement.
// Lazy loading of a semantic chunking model, if one is ever plugged in,
// is the implementation's concern, not the caller's.
type TextChunker interface {
	ChunkWithMetadata(text string, metadata map[string]any) ([]Chunk, error)
}

// ChunkWithMetadata wraps ChunkText's sentence-aware splitting and stamps
// each resulting piece with its dense 0-based chunk_index and a copy of
// the caller's base metadata, satisfying the external Chunker contract.
func (c *Chunker) ChunkWithMetadata(text string, metadata map[string]any) ([]Chunk, error) {
	pieces, err := c.ChunkText(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		meta := make(map[string]any, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
		chunks[i] = Chunk{
			Text:       p,
			ChunkIndex: i,
			Metadata:   meta,
		}
	}
	return chunks, nil
}

var _ TextChunker = (*Chunker)(nil)
