// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

// pqVariant is an inverted list over coarse centroids whose per-cluster
// vectors are additionally product-quantized: each vector is split into
// PQSubQuantizers sub-vectors, each independently vector-quantized against
// its own small codebook. A full-precision copy of every added vector is
// also kept and is preferred by Search and Reconstruct, so the codes do
// not reduce memory or change recall while that copy is held.
type pqVariant struct {
	dim int
	cfg Config

	trained      bool
	coarse       [][]float32   // coarse centroids, length K
	subDim       int           // dim / PQSubQuantizers
	subCodebooks [][][]float32 // [sub-quantizer][code][subDim]

	lists     map[int][]uint64
	codes     map[uint64][]byte // per-vector PQ code, one byte per sub-quantizer (PQBits<=8)
	clusterOf map[uint64]int
	exact     map[uint64][]float32 // kept for every added vector until Remove; Search and Reconstruct prefer this
}

func newPQVariant(dim int, cfg Config) *pqVariant {
	subDim := dim / cfg.PQSubQuantizers
	if subDim == 0 {
		subDim = 1
	}
	return &pqVariant{
		dim:       dim,
		cfg:       cfg,
		subDim:    subDim,
		lists:     make(map[int][]uint64),
		codes:     make(map[uint64][]byte),
		clusterOf: make(map[uint64]int),
		exact:     make(map[uint64][]float32),
	}
}

func (p *pqVariant) Kind() string        { return string(TierInvertedPQ) }
func (p *pqVariant) NeedsTraining() bool { return true }
func (p *pqVariant) IsTrained() bool     { return p.trained }
func (p *pqVariant) Len() int            { return len(p.clusterOf) }

// Train builds the coarse quantizer (PQClusters centroids) and, for each of
// the PQSubQuantizers sub-vector slices, a 2^PQBits-entry codebook.
func (p *pqVariant) Train(samples [][]float32) {
	if len(samples) == 0 {
		return
	}
	k := p.cfg.PQClusters
	if k > len(samples) {
		k = len(samples)
	}
	p.coarse = kmeans(samples, k, 10)

	codeCount := 1 << uint(p.cfg.PQBits)
	p.subCodebooks = make([][][]float32, p.cfg.PQSubQuantizers)
	for s := 0; s < p.cfg.PQSubQuantizers; s++ {
		sub := extractSubVectors(samples, s, p.subDim)
		cb := codeCount
		if cb > len(sub) {
			cb = len(sub)
		}
		if cb == 0 {
			cb = 1
		}
		p.subCodebooks[s] = kmeans(sub, cb, 6)
	}
	p.trained = true
}

func extractSubVectors(samples [][]float32, sub, subDim int) [][]float32 {
	start := sub * subDim
	out := make([][]float32, 0, len(samples))
	for _, s := range samples {
		end := start + subDim
		if end > len(s) {
			end = len(s)
		}
		if start >= end {
			continue
		}
		piece := make([]float32, end-start)
		copy(piece, s[start:end])
		out = append(out, piece)
	}
	return out
}

func (p *pqVariant) encode(vec []float32) []byte {
	code := make([]byte, len(p.subCodebooks))
	for s, codebook := range p.subCodebooks {
		start := s * p.subDim
		end := start + p.subDim
		if end > len(vec) {
			end = len(vec)
		}
		if start >= end {
			code[s] = 0
			continue
		}
		piece := vec[start:end]
		best, bestDist := 0, -1.0
		for ci, c := range codebook {
			d := sqDist(piece, c)
			if bestDist < 0 || d < bestDist {
				best, bestDist = ci, d
			}
		}
		code[s] = byte(best)
	}
	return code
}

func (p *pqVariant) decode(code []byte) []float32 {
	out := make([]float32, 0, p.dim)
	for s, c := range code {
		if int(c) >= len(p.subCodebooks[s]) {
			continue
		}
		out = append(out, p.subCodebooks[s][c]...)
	}
	return out
}

func (p *pqVariant) Add(key uint64, vec []float32) {
	if !p.trained {
		return
	}
	c := nearestCentroid(vec, p.coarse)
	p.lists[c] = append(p.lists[c], key)
	p.clusterOf[key] = c
	p.codes[key] = p.encode(vec)
	p.exact[key] = vec
}

func (p *pqVariant) Remove(key uint64) {
	if c, ok := p.clusterOf[key]; ok {
		members := p.lists[c]
		for i, m := range members {
			if m == key {
				p.lists[c] = append(members[:i], members[i+1:]...)
				break
			}
		}
	}
	delete(p.clusterOf, key)
	delete(p.codes, key)
	delete(p.exact, key)
}

// Reconstruct returns the exact vector when one is held, falling back to
// the PQ-decoded approximation when no exact copy exists for key.
func (p *pqVariant) Reconstruct(key uint64) ([]float32, bool) {
	if v, ok := p.exact[key]; ok {
		return v, true
	}
	code, ok := p.codes[key]
	if !ok {
		return nil, false
	}
	return p.decode(code), true
}

func (p *pqVariant) Search(query []float32, k int) []scoredKey {
	if !p.trained || len(p.coarse) == 0 {
		return nil
	}
	probe := clampProbe(len(p.coarse), 20)
	if wanted := (k / 10) + 1; wanted > probe {
		probe = wanted
	}
	if probe > len(p.coarse) {
		probe = len(p.coarse)
	}

	ranked := rankCentroids(query, p.coarse)
	hits := make([]scoredKey, 0, k*4)
	for i := 0; i < probe; i++ {
		for _, key := range p.lists[ranked[i]] {
			var vec []float32
			if v, ok := p.exact[key]; ok {
				vec = v
			} else {
				vec = p.decode(p.codes[key])
			}
			hits = append(hits, scoredKey{Key: key, Similarity: dot(query, vec)})
		}
	}
	return sortAndTruncate(hits, k)
}
