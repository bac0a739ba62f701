// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/logger"
)

// SearchHit mirrors vectorindex.SearchHit so the query layer can treat
// both backends uniformly.
type SearchHit struct {
	Payload    map[string]any
	Similarity float32
}

// ScrollPage is one page of a streaming scan, with a continuation cursor
// the caller passes back to fetch the next page. A nil cursor means the
// scan is exhausted.
type ScrollPage struct {
	Hits   []map[string]any
	Cursor *qdrant.PointId
}

// Store is the Qdrant-backed filterable vector store. It exposes
// the same vector_id-keyed operations as vectorindex.Index plus
// server-side filtering, streaming scans, and doc_type aggregation.
type Store struct {
	collections qdrant.CollectionsClient
	points      qdrant.PointsClient
	collection  string
	dim         int
	log         *logger.Logger
}

// NewStore wraps an existing gRPC connection and ensures the target
// collection exists with cosine distance at the given dimensionality.
func NewStore(conn *grpc.ClientConn, collection string, dim int) (*Store, error) {
	if conn == nil {
		return nil, apierr.New(apierr.CodeInvalidRequest, "grpc connection is required")
	}
	s := &Store{
		collections: qdrant.NewCollectionsClient(conn),
		points:      qdrant.NewPointsClient(conn),
		collection:  collection,
		dim:         dim,
		log:         logger.GetDefault(),
	}
	if err := s.ensureCollection(context.Background(), dim); err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "ensure collection", err)
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context, dim int) error {
	collections, err := s.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range collections.Collections {
		if c.Name == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	s.log.Printf("filterstore: created collection %s with dimension %d", s.collection, dim)
	return nil
}

func pointIDFor(vectorID string) *qdrant.PointId {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(vectorID))
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id.String()}}
}

// AddVectors upserts vectors with their flat metadata payloads, enriching
// each payload with doc_type/has_incident/incident_ids before write.
func (s *Store) AddVectors(ctx context.Context, vectors [][]float32, metas []map[string]any) ([]string, error) {
	if len(vectors) == 0 {
		return nil, apierr.New(apierr.CodeInvalidRequest, "add_vectors requires at least one vector")
	}
	if len(vectors) != len(metas) {
		return nil, apierr.New(apierr.CodeInvalidRequest, "vectors and metadata length mismatch")
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	ids := make([]string, 0, len(vectors))
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return nil, apierr.New(apierr.CodeInvalidParameter, fmt.Sprintf("expected dimension %d, got %d", s.dim, len(vec)))
		}
		flattenNestedMetadata(metas[i])
		enrichPayload(metas[i])

		vectorID, _ := metas[i]["vector_id"].(string)
		if vectorID == "" {
			vectorID = uuid.NewString()
			metas[i]["vector_id"] = vectorID
		}

		points = append(points, &qdrant.PointStruct{
			Id: pointIDFor(vectorID),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vec}},
			},
			Payload: toQdrantPayload(metas[i]),
		})
		ids = append(ids, vectorID)
	}

	_, err := s.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "upsert points", err)
	}
	return ids, nil
}

func flattenNestedMetadata(meta map[string]any) {
	nested, ok := meta["metadata"]
	if !ok {
		return
	}
	if m, ok := nested.(map[string]any); ok {
		for k, v := range m {
			if _, exists := meta[k]; !exists {
				meta[k] = v
			}
		}
	}
	delete(meta, "metadata")
}

// Search returns up to k nearest neighbors, applying filter server-side.
func (s *Store) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]SearchHit, error) {
	if len(query) != s.dim {
		return nil, apierr.New(apierr.CodeInvalidParameter, fmt.Sprintf("expected dimension %d, got %d", s.dim, len(query)))
	}
	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         query,
		Limit:          uint64(k),
		Filter:         toQdrantFilter(filter),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "search", err)
	}

	hits := make([]SearchHit, 0, len(resp.Result))
	for _, sp := range resp.Result {
		payload := fromQdrantPayload(sp.Payload)
		if deleted, _ := payload["deleted"].(bool); deleted {
			continue
		}
		hits = append(hits, SearchHit{Payload: payload, Similarity: sp.Score})
	}
	return hits, nil
}

// SearchWithMetadata flattens hits into the same flat result shape vectorindex.Index returns.
func (s *Store) SearchWithMetadata(ctx context.Context, query []float32, k int, filter *Filter) ([]map[string]any, error) {
	hits, err := s.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		rec := make(map[string]any, len(h.Payload)+4)
		for k, v := range h.Payload {
			rec[k] = v
		}
		delete(rec, "metadata")
		rec["similarity_score"] = h.Similarity
		rec["score"] = h.Similarity
		if text, ok := rec["text"]; ok {
			rec["content"] = text
		}
		if chunkIdx, ok := rec["chunk_index"]; ok {
			rec["chunk_id"] = chunkIdx
		}
		out = append(out, rec)
	}
	return out, nil
}

// UpdateMetadata merges updates into the stored payload for vectorID.
func (s *Store) UpdateMetadata(ctx context.Context, vectorID string, updates map[string]any) error {
	_, err := s.points.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: s.collection,
		Payload:        toQdrantPayload(updates),
		PointsSelector: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{pointIDFor(vectorID)}},
			},
		},
	})
	if err != nil {
		return apierr.Wrap(apierr.CodeVectorStoreError, "update metadata", err)
	}
	return nil
}

// GetMetadata retrieves the stored payload for vectorID.
func (s *Store) GetMetadata(ctx context.Context, vectorID string) (map[string]any, bool, error) {
	resp, err := s.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{pointIDFor(vectorID)},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, false, apierr.Wrap(apierr.CodeVectorStoreError, "get metadata", err)
	}
	if len(resp.Result) == 0 {
		return nil, false, nil
	}
	return fromQdrantPayload(resp.Result[0].Payload), true, nil
}

// DeleteVectors performs logical deletion: sets
// deleted=true and deleted_at rather than physically removing the point.
func (s *Store) DeleteVectors(ctx context.Context, vectorIDs []string) error {
	now := time.Now().UTC()
	for _, id := range vectorIDs {
		if err := s.UpdateMetadata(ctx, id, map[string]any{"deleted": true, "deleted_at": now}); err != nil {
			return err
		}
	}
	return nil
}

// FindVectorsByDocPath scrolls the collection for every point whose
// doc_path matches path.
func (s *Store) FindVectorsByDocPath(ctx context.Context, path string) ([]string, error) {
	var ids []string
	var cursor *qdrant.PointId
	for {
		page, err := s.Scroll(ctx, &Filter{Constraints: []Constraint{Eq("doc_path", path)}}, cursor, 1000)
		if err != nil {
			return nil, err
		}
		for _, hit := range page.Hits {
			if deleted, _ := hit["deleted"].(bool); deleted {
				continue
			}
			if id, ok := hit["vector_id"].(string); ok {
				ids = append(ids, id)
			}
		}
		if page.Cursor == nil {
			break
		}
		cursor = page.Cursor
	}
	return ids, nil
}

// DeleteVectorsByDocPath logically deletes every vector under path.
func (s *Store) DeleteVectorsByDocPath(ctx context.Context, path string) error {
	ids, err := s.FindVectorsByDocPath(ctx, path)
	if err != nil {
		return err
	}
	return s.DeleteVectors(ctx, ids)
}

// Clear deletes and recreates the collection, discarding all points.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: s.collection}); err != nil {
		return apierr.Wrap(apierr.CodeVectorStoreError, "clear: delete collection", err)
	}
	return s.ensureCollection(ctx, s.dim)
}

// Scroll streams a single page of points matching filter, returning a
// continuation cursor for the next call.
func (s *Store) Scroll(ctx context.Context, filter *Filter, cursor *qdrant.PointId, batchSize int) (*ScrollPage, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	limit := uint32(batchSize)
	resp, err := s.points.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         toQdrantFilter(filter),
		Offset:         cursor,
		Limit:          &limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeVectorStoreError, "scroll", err)
	}

	hits := make([]map[string]any, 0, len(resp.Result))
	for _, p := range resp.Result {
		hits = append(hits, fromQdrantPayload(p.Payload))
	}
	return &ScrollPage{Hits: hits, Cursor: resp.NextPageOffset}, nil
}

// AggregateByDocType scrolls the whole collection and returns counts per
// doc_type category.
func (s *Store) AggregateByDocType(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	var cursor *qdrant.PointId
	for {
		page, err := s.Scroll(ctx, nil, cursor, 1000)
		if err != nil {
			return nil, err
		}
		for _, hit := range page.Hits {
			if deleted, _ := hit["deleted"].(bool); deleted {
				continue
			}
			docType, _ := hit["doc_type"].(string)
			if docType == "" {
				docType = "other"
			}
			counts[docType]++
		}
		if page.Cursor == nil {
			break
		}
		cursor = page.Cursor
	}
	return counts, nil
}
