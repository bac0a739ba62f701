// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/northbound/rag-core/internal/apierr"
	"github.com/northbound/rag-core/internal/logger"
)

// SearchHit is one ranked result from Search: the stored payload plus its
// similarity to the query.
type SearchHit struct {
	Payload    map[string]any
	Similarity float32
}

// Index is the self-optimizing vector store: it stores
// D-dimensional unit-normalized vectors, auto-selects among four ANN
// variants by population, and exposes logical deletion, atomic
// persistence, and dimension-migration operations.
//
// All mutating operations take the write half of mu; searches and reads
// take the read half.
type Index struct {
	mu  sync.RWMutex
	cfg Config
	dim int
	log *logger.Logger

	variant variant
	tier    Tier

	nextPos      uint64
	posToID      map[uint64]string
	idToPos      map[string]uint64
	payload      map[string]map[string]any
	deletedCount int

	trainingSamples [][]float32
	trainingNeeded  int
}

// NewIndex creates an empty index for vectors of the given dimensionality.
func NewIndex(dim int, cfg Config) *Index {
	idx := &Index{
		cfg:     cfg,
		dim:     dim,
		log:     logger.GetDefault(),
		posToID: make(map[uint64]string),
		idToPos: make(map[string]uint64),
		payload: make(map[string]map[string]any),
	}
	idx.tier = SelectTier(0, cfg)
	idx.variant = newVariant(idx.tier, dim, cfg)
	return idx
}

// AddVectors inserts vectors with their flat metadata payloads, returning
// the assigned vector ids.
func (idx *Index) AddVectors(vectors [][]float32, metas []map[string]any) ([]string, error) {
	if len(vectors) == 0 {
		return nil, apierr.New(apierr.CodeInvalidRequest, "add_vectors requires at least one vector")
	}
	if len(vectors) != len(metas) {
		return nil, apierr.New(apierr.CodeInvalidRequest, "vectors and metadata length mismatch")
	}
	for _, v := range vectors {
		if len(v) != idx.dim {
			return nil, apierr.New(apierr.CodeInvalidParameter, fmt.Sprintf("expected dimension %d, got %d", idx.dim, len(v)))
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := make([]string, 0, len(vectors))
	for i, vec := range vectors {
		flattenNestedMetadata(metas[i])

		pos := idx.nextPos
		idx.nextPos++

		vectorID, _ := metas[i]["vector_id"].(string)
		if vectorID == "" {
			vectorID = fmt.Sprintf("vec_%d", pos)
		}
		idx.posToID[pos] = vectorID
		idx.idToPos[vectorID] = pos

		p := make(map[string]any, len(metas[i])+1)
		for k, v := range metas[i] {
			p[k] = v
		}
		p["vector_id"] = vectorID
		idx.payload[vectorID] = p

		nv := normalize(vec)
		idx.variant.Add(pos, nv)
		if idx.variant.NeedsTraining() && !idx.variant.IsTrained() {
			idx.trainingSamples = append(idx.trainingSamples, nv)
		}
		ids = append(ids, vectorID)
	}

	idx.maybeAutoTrain()
	idx.reevaluateVariant()
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

func (idx *Index) maybeAutoTrain() {
	if !idx.variant.NeedsTraining() || idx.variant.IsTrained() {
		return
	}
	threshold := idx.cfg.IVFTrainMinSamples
	if n := idx.variant.Len(); n < threshold {
		threshold = n
	}
	if len(idx.trainingSamples) < threshold || threshold == 0 {
		return
	}
	idx.variant.Train(idx.trainingSamples)
	idx.trainingSamples = nil
}

// reevaluateVariant checks whether the live population has crossed a tier
// boundary and, if so, migrates by reconstructing all live vectors in
// batches and reindexing into a fresh variant of the new tier.
func (idx *Index) reevaluateVariant() {
	live := idx.livePopulation()
	newTier := SelectTier(live, idx.cfg)
	if newTier == idx.tier {
		return
	}
	idx.log.Printf("vectorindex: migrating tier %s -> %s at population %d", idx.tier, newTier, live)
	idx.rebuildAs(newTier)
}

func (idx *Index) livePopulation() int {
	count := 0
	for id := range idx.payload {
		if deleted, _ := idx.payload[id]["deleted"].(bool); !deleted {
			count++
		}
	}
	return count
}

// rebuildAs reconstructs every live vector from the current variant into a
// freshly constructed one of the given tier, batching inserts at
// RebuildBatchSize, then swaps the variant under the write lock the caller
// already holds.
func (idx *Index) rebuildAs(tier Tier) {
	fresh := newVariant(tier, idx.dim, idx.cfg)
	batch := make([][]float32, 0, idx.cfg.RebuildBatchSize)
	keys := make([]uint64, 0, idx.cfg.RebuildBatchSize)

	flush := func() {
		if fresh.NeedsTraining() && !fresh.IsTrained() {
			fresh.Train(batch)
		}
		for i, v := range batch {
			fresh.Add(keys[i], v)
		}
		batch = batch[:0]
		keys = keys[:0]
	}

	for pos, id := range idx.posToID {
		if deleted, _ := idx.payload[id]["deleted"].(bool); deleted {
			continue
		}
		vec, ok := idx.variant.Reconstruct(pos)
		if !ok {
			continue
		}
		batch = append(batch, vec)
		keys = append(keys, pos)
		if len(batch) >= idx.cfg.RebuildBatchSize {
			flush()
		}
	}
	if len(batch) > 0 {
		flush()
	}

	idx.variant = fresh
	idx.tier = tier
	idx.trainingSamples = nil
	idx.deletedCount = 0
}

// Search returns up to k nearest neighbors to query, applying an optional
// equality filter over payload attributes.
func (idx *Index) Search(query []float32, k int, filter map[string]any) ([]SearchHit, error) {
	if len(query) != idx.dim {
		return nil, apierr.New(apierr.CodeInvalidParameter, fmt.Sprintf("expected dimension %d, got %d", idx.dim, len(query)))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.variant.IsTrained() || idx.variant.Len() == 0 {
		return nil, nil
	}

	overFetch := k * idx.cfg.OverFetchFactor
	if overFetch < k {
		overFetch = k
	}
	raw := idx.variant.Search(normalize(query), overFetch)

	hits := make([]SearchHit, 0, k)
	for _, h := range raw {
		id, ok := idx.posToID[h.Key]
		if !ok {
			continue
		}
		p := idx.payload[id]
		if deleted, _ := p["deleted"].(bool); deleted {
			continue
		}
		if !matchesFilter(p, filter) {
			continue
		}
		hits = append(hits, SearchHit{Payload: p, Similarity: h.Similarity})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

func matchesFilter(payload, filter map[string]any) bool {
	for k, v := range filter {
		if payload[k] != v {
			return false
		}
	}
	return true
}

// SearchWithMetadata wraps Search, flattening each hit into the result
// record shape: similarity_score, score (alias), vector_id, doc_id,
// text, content (alias), chunk_id, plus every other payload key. No
// nested metadata key is ever emitted.
func (idx *Index) SearchWithMetadata(query []float32, k int) ([]map[string]any, error) {
	hits, err := idx.Search(query, k, nil)
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

// UpdateMetadata merges updates into the stored payload for vector_id.
func (idx *Index) UpdateMetadata(vectorID string, updates map[string]any) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	p, ok := idx.payload[vectorID]
	if !ok {
		return apierr.New(apierr.CodeNotFound, "vector_id not found: "+vectorID)
	}
	for k, v := range updates {
		p[k] = v
	}
	return nil
}

// GetMetadata returns the stored payload for vector_id.
func (idx *Index) GetMetadata(vectorID string) (map[string]any, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.payload[vectorID]
	return p, ok
}

// DeleteVectors performs logical deletion: each vector is flagged
// deleted=true with a deleted_at timestamp rather than physically removed.
// If the deleted fraction of the live population then exceeds
// SoftRebuildDeletedFraction, a rebuild is triggered immediately.
func (idx *Index) DeleteVectors(vectorIDs []string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range vectorIDs {
		p, ok := idx.payload[id]
		if !ok {
			continue
		}
		if deleted, _ := p["deleted"].(bool); deleted {
			continue
		}
		p["deleted"] = true
		p["deleted_at"] = now
		idx.deletedCount++
	}

	idx.maybeSoftRebuild()
	return nil
}

func (idx *Index) maybeSoftRebuild() {
	live := idx.livePopulation()
	total := live + idx.deletedCount
	if total == 0 {
		return
	}
	if float64(idx.deletedCount)/float64(total) > idx.cfg.SoftRebuildDeletedFraction {
		idx.log.Printf("vectorindex: soft rebuild triggered, deleted fraction exceeds threshold")
		idx.rebuildAs(idx.tier)
	}
}

// RebuildIfStale is invoked once at startup: if the deleted fraction
// exceeds StartupRebuildDeletedFraction, rebuild immediately.
func (idx *Index) RebuildIfStale() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	live := idx.livePopulation()
	total := live + idx.deletedCount
	if total == 0 {
		return
	}
	if float64(idx.deletedCount)/float64(total) > idx.cfg.StartupRebuildDeletedFraction {
		idx.log.Printf("vectorindex: startup rebuild triggered, deleted fraction exceeds threshold")
		idx.rebuildAs(SelectTier(live, idx.cfg))
	}
}

// FindVectorsByDocPath returns every vector id whose payload's doc_path
// matches path.
func (idx *Index) FindVectorsByDocPath(path string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var ids []string
	for id, p := range idx.payload {
		if deleted, _ := p["deleted"].(bool); deleted {
			continue
		}
		if dp, _ := p["doc_path"].(string); dp == path {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// DeleteVectorsByDocPath logically deletes every vector belonging to path.
func (idx *Index) DeleteVectorsByDocPath(path string) error {
	ids := idx.FindVectorsByDocPath(path)
	return idx.DeleteVectors(ids)
}

// Clear empties the index, resetting to an untrained flat variant.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.tier = SelectTier(0, idx.cfg)
	idx.variant = newVariant(idx.tier, idx.dim, idx.cfg)
	idx.nextPos = 0
	idx.posToID = make(map[uint64]string)
	idx.idToPos = make(map[string]uint64)
	idx.payload = make(map[string]map[string]any)
	idx.deletedCount = 0
	idx.trainingSamples = nil
}

// CheckDimensionCompatibility reports whether newD matches the current
// dimensionality and, if not, what migration paths are available.
func (idx *Index) CheckDimensionCompatibility(newD int) map[string]any {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	compatible := newD == idx.dim
	return map[string]any{
		"compatible":   compatible,
		"current_dim":  idx.dim,
		"requested_dim": newD,
		"options": []string{
			"migrate_to_new_dimension",
			"force_rebuild_for_new_dimension",
		},
	}
}

// Embedder re-embeds text for dimension migration. internal/embeddings.Embedder
// does not satisfy it directly (its method is EmbedText with a context), so
// callers pass an adapter.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// MigrateToNewDimension re-embeds every live vector's original text at the
// new dimensionality, rebuilding the index from scratch. On any failure it
// leaves the index untouched and returns the error, so the
// pre-migration state survives intact (the caller is expected to
// have taken a Backup immediately before calling this).
func (idx *Index) MigrateToNewDimension(newD int, embedder Embedder) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	type liveVec struct {
		id   string
		text string
	}
	var live []liveVec
	for id, p := range idx.payload {
		if deleted, _ := p["deleted"].(bool); deleted {
			continue
		}
		text, _ := p["text"].(string)
		live = append(live, liveVec{id: id, text: text})
	}

	newTier := SelectTier(len(live), idx.cfg)
	newVar := newVariant(newTier, newD, idx.cfg)
	newPosToID := make(map[uint64]string, len(live))
	newIDToPos := make(map[string]uint64, len(live))

	var samples [][]float32
	var pending []struct {
		pos uint64
		vec []float32
	}
	var pos uint64
	for _, lv := range live {
		vec, err := embedder.Embed(lv.text)
		if err != nil {
			return apierr.Wrap(apierr.CodeEmbeddingError, "re-embedding failed during dimension migration", err)
		}
		if len(vec) != newD {
			return apierr.New(apierr.CodeEmbeddingError, "embedder returned unexpected dimension during migration")
		}
		nv := normalize(vec)
		newPosToID[pos] = lv.id
		newIDToPos[lv.id] = pos
		samples = append(samples, nv)
		pending = append(pending, struct {
			pos uint64
			vec []float32
		}{pos, nv})
		pos++
	}

	if newVar.NeedsTraining() {
		newVar.Train(samples)
	}
	for _, pv := range pending {
		newVar.Add(pv.pos, pv.vec)
	}

	idx.dim = newD
	idx.tier = newTier
	idx.variant = newVar
	idx.posToID = newPosToID
	idx.idToPos = newIDToPos
	idx.nextPos = pos
	idx.deletedCount = 0
	idx.trainingSamples = nil
	return nil
}

// ForceRebuildForNewDimension wipes the index and reinitializes it at the
// new dimensionality with no attempt to preserve existing vectors.
func (idx *Index) ForceRebuildForNewDimension(newD int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.dim = newD
	idx.tier = SelectTier(0, idx.cfg)
	idx.variant = newVariant(idx.tier, newD, idx.cfg)
	idx.nextPos = 0
	idx.posToID = make(map[uint64]string)
	idx.idToPos = make(map[string]uint64)
	idx.payload = make(map[string]map[string]any)
	idx.deletedCount = 0
	idx.trainingSamples = nil
}

// Dim returns the index's current vector dimensionality.
func (idx *Index) Dim() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Len returns the current live population (excludes logically deleted
// vectors).
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.livePopulation()
}

// CurrentTier reports the currently active ANN variant.
func (idx *Index) CurrentTier() Tier {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tier
}
