// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import "sort"

// flatVariant is the exact brute-force search used below the 10,000-vector
// threshold. No training step, no approximation.
type flatVariant struct {
	dim     int
	vectors map[uint64][]float32
}

func newFlatVariant(dim int) *flatVariant {
	return &flatVariant{dim: dim, vectors: make(map[uint64][]float32)}
}

func (f *flatVariant) Kind() string         { return string(TierFlat) }
func (f *flatVariant) NeedsTraining() bool  { return false }
func (f *flatVariant) IsTrained() bool      { return true }
func (f *flatVariant) Train([][]float32)    {}
func (f *flatVariant) Len() int             { return len(f.vectors) }

func (f *flatVariant) Add(key uint64, vec []float32) {
	f.vectors[key] = vec
}

func (f *flatVariant) Remove(key uint64) {
	delete(f.vectors, key)
}

func (f *flatVariant) Reconstruct(key uint64) ([]float32, bool) {
	v, ok := f.vectors[key]
	return v, ok
}

func (f *flatVariant) Search(query []float32, k int) []scoredKey {
	hits := make([]scoredKey, 0, len(f.vectors))
	for key, v := range f.vectors {
		hits = append(hits, scoredKey{Key: key, Similarity: dot(query, v)})
	}
	return sortAndTruncate(hits, k)
}

// sortAndTruncate sorts by similarity descending, position ascending on
// ties, then truncates to k.
func sortAndTruncate(hits []scoredKey, k int) []scoredKey {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Key < hits[j].Key
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
