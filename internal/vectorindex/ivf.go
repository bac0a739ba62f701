// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

// ivfVariant is an inverted-list index: vectors are routed to the nearest
// of K coarse centroids, and a search only probes a handful of the closest
// lists. Used for the 10k-100k population band.
type ivfVariant struct {
	dim    int
	cfg    Config
	k      int // number of clusters, 2*sqrt(N) clamped to [IVFMinClusters, IVFMaxClusters]
	probe  int // number of lists to probe per search

	trained   bool
	centroids [][]float32
	lists     map[int][]uint64 // cluster -> member keys
	vectors   map[uint64][]float32
	clusterOf map[uint64]int

	trainingSamples [][]float32
}

func newIVFVariant(dim int, cfg Config) *ivfVariant {
	return &ivfVariant{
		dim:       dim,
		cfg:       cfg,
		lists:     make(map[int][]uint64),
		vectors:   make(map[uint64][]float32),
		clusterOf: make(map[uint64]int),
	}
}

func (v *ivfVariant) Kind() string        { return string(TierInvertedList) }
func (v *ivfVariant) NeedsTraining() bool { return true }
func (v *ivfVariant) IsTrained() bool     { return v.trained }
func (v *ivfVariant) Len() int            { return len(v.vectors) }

// Train clusters the accumulated sample set into K centroids, K = 2*sqrt(N)
// clamped to [IVFMinClusters, IVFMaxClusters].
func (v *ivfVariant) Train(samples [][]float32) {
	if len(samples) == 0 {
		return
	}
	n := len(samples)
	k := clampedClusterCount(n, v.cfg.IVFMinClusters, v.cfg.IVFMaxClusters)
	v.k = k
	v.centroids = kmeans(samples, k, 10)
	v.probe = clampProbe(k, 10)
	v.trained = true
}

func clampedClusterCount(n, minC, maxC int) int {
	k := int(2.0 * sqrtApprox(float64(n)))
	if k < minC {
		k = minC
	}
	if k > maxC {
		k = maxC
	}
	return k
}

func sqrtApprox(x float64) float64 {
	if x <= 0 {
		return 0
	}
	// Newton's method; avoids importing math just for Sqrt twice across files
	// is unnecessary, but keeps this file's dependency surface obvious.
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func clampProbe(k, divisor int) int {
	probe := k / divisor
	if probe < 1 {
		probe = 1
	}
	if probe > 64 {
		probe = 64
	}
	return probe
}

func (v *ivfVariant) Add(key uint64, vec []float32) {
	v.vectors[key] = vec
	if !v.trained {
		return
	}
	c := nearestCentroid(vec, v.centroids)
	v.lists[c] = append(v.lists[c], key)
	v.clusterOf[key] = c
}

func (v *ivfVariant) Remove(key uint64) {
	delete(v.vectors, key)
	if c, ok := v.clusterOf[key]; ok {
		members := v.lists[c]
		for i, m := range members {
			if m == key {
				v.lists[c] = append(members[:i], members[i+1:]...)
				break
			}
		}
		delete(v.clusterOf, key)
	}
}

func (v *ivfVariant) Reconstruct(key uint64) ([]float32, bool) {
	vec, ok := v.vectors[key]
	return vec, ok
}

// Search tunes the number of probed lists by k: at least v.probe, but never
// fewer than enough lists to plausibly return k candidates.
func (v *ivfVariant) Search(query []float32, k int) []scoredKey {
	if !v.trained || len(v.centroids) == 0 {
		return nil
	}

	probe := v.probe
	if wanted := (k / 10) + 1; wanted > probe {
		probe = wanted
	}
	if probe > len(v.centroids) {
		probe = len(v.centroids)
	}

	ranked := rankCentroids(query, v.centroids)
	hits := make([]scoredKey, 0, k*4)
	for i := 0; i < probe; i++ {
		cluster := ranked[i]
		for _, key := range v.lists[cluster] {
			hits = append(hits, scoredKey{Key: key, Similarity: dot(query, v.vectors[key])})
		}
	}
	return sortAndTruncate(hits, k)
}

func rankCentroids(query []float32, centroids [][]float32) []int {
	type cd struct {
		idx  int
		dist float64
	}
	ranked := make([]cd, len(centroids))
	for i, c := range centroids {
		ranked[i] = cd{idx: i, dist: sqDist(query, c)}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].dist < ranked[j-1].dist; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	out := make([]int, len(ranked))
	for i, r := range ranked {
		out[i] = r.idx
	}
	return out
}
