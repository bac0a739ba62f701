// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import (
	"math"

	"github.com/coder/hnsw"
)

// graphVariant wraps coder/hnsw for the 100k-1M population band.
// Deletion is lazy: Remove only orphans the key from the live set, since
// deleting the last node from a coder/hnsw graph is unsafe. Orphans stay in
// the graph until the index's soft/startup rebuild replaces this variant
// wholesale.
type graphVariant struct {
	graph   *hnsw.Graph[uint64]
	live    map[uint64]bool
	vectors map[uint64][]float32 // kept alongside the graph for exact Reconstruct
}

func newGraphVariant(dim int, cfg Config) *graphVariant {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.GraphM
	g.EfSearch = cfg.GraphEfSearchMin
	g.Ml = 1 / math.Log(float64(cfg.GraphM))
	return &graphVariant{graph: g, live: make(map[uint64]bool), vectors: make(map[uint64][]float32)}
}

func (g *graphVariant) Kind() string        { return string(TierGraph) }
func (g *graphVariant) NeedsTraining() bool { return false }
func (g *graphVariant) IsTrained() bool     { return true }
func (g *graphVariant) Train([][]float32)   {}
func (g *graphVariant) Len() int            { return len(g.live) }

func (g *graphVariant) Add(key uint64, vec []float32) {
	node := hnsw.MakeNode(key, vec)
	g.graph.Add(node)
	g.live[key] = true
	g.vectors[key] = vec
}

func (g *graphVariant) Remove(key uint64) {
	delete(g.live, key)
	delete(g.vectors, key)
}

func (g *graphVariant) Reconstruct(key uint64) ([]float32, bool) {
	if !g.live[key] {
		return nil, false
	}
	vec, ok := g.vectors[key]
	return vec, ok
}

func (g *graphVariant) Search(query []float32, k int) []scoredKey {
	if g.graph.Len() == 0 {
		return nil
	}
	// Over-fetch from the graph since lazy-deleted orphans may be returned.
	fetch := k * 4
	if fetch < k {
		fetch = k
	}
	nodes := g.graph.Search(query, fetch)
	hits := make([]scoredKey, 0, len(nodes))
	for _, n := range nodes {
		if !g.live[n.Key] {
			continue
		}
		dist := g.graph.Distance(query, n.Value)
		hits = append(hits, scoredKey{Key: n.Key, Similarity: 1 - dist/2})
	}
	return sortAndTruncate(hits, k)
}
