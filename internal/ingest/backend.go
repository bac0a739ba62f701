// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"

	"github.com/northbound/rag-core/internal/vectorindex"
)

// VectorBackend is the subset of either vectorindex.Index or
// filterstore.Store the engine needs to store and locate vectors. Both
// concrete backends implement this, letting the engine stay agnostic to
// which tier (self-optimizing in-process index vs. server-side filterable
// store) a deployment picked.
type VectorBackend interface {
	AddVectors(ctx context.Context, vectors [][]float32, metas []map[string]any) ([]string, error)
	UpdateMetadata(ctx context.Context, vectorID string, updates map[string]any) error
	GetMetadata(ctx context.Context, vectorID string) (map[string]any, bool, error)
	DeleteVectors(ctx context.Context, vectorIDs []string) error
	FindVectorsByDocPath(ctx context.Context, path string) ([]string, error)
	DeleteVectorsByDocPath(ctx context.Context, path string) error
}

// IndexBackend adapts *vectorindex.Index, whose operations are
// synchronous and in-process, to VectorBackend's context-carrying
// signatures. filterstore.Store already matches VectorBackend directly
// since its calls cross a network boundary.
type IndexBackend struct {
	Index *vectorindex.Index
}

func (b IndexBackend) AddVectors(ctx context.Context, vectors [][]float32, metas []map[string]any) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Index.AddVectors(vectors, metas)
}

func (b IndexBackend) UpdateMetadata(ctx context.Context, vectorID string, updates map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Index.UpdateMetadata(vectorID, updates)
}

func (b IndexBackend) GetMetadata(ctx context.Context, vectorID string) (map[string]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	meta, ok := b.Index.GetMetadata(vectorID)
	return meta, ok, nil
}

func (b IndexBackend) DeleteVectors(ctx context.Context, vectorIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Index.DeleteVectors(vectorIDs)
}

func (b IndexBackend) FindVectorsByDocPath(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Index.FindVectorsByDocPath(path), nil
}

func (b IndexBackend) DeleteVectorsByDocPath(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Index.DeleteVectorsByDocPath(path)
}

var _ VectorBackend = IndexBackend{}
