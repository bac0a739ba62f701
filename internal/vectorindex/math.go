// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

import "math"

// normalize returns a unit-length copy of v. Vectors are stored
// unit-normalized so inner product search doubles as cosine similarity.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		copy(out, v)
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// sqDist computes squared Euclidean distance, used by clustering.
func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// kmeans runs a fixed number of Lloyd's-algorithm iterations starting from
// k samples drawn (without replacement, in order) from the training set.
// It is intentionally simple: the index only needs coarse centroids good
// enough to route a search to a handful of clusters, not a globally optimal
// clustering.
func kmeans(samples [][]float32, k, iterations int) [][]float32 {
	if k <= 0 {
		return nil
	}
	if k > len(samples) {
		k = len(samples)
	}
	dim := len(samples[0])

	centroids := make([][]float32, k)
	step := len(samples) / k
	if step == 0 {
		step = 1
	}
	for i := 0; i < k; i++ {
		src := samples[(i*step)%len(samples)]
		c := make([]float32, dim)
		copy(c, src)
		centroids[i] = c
	}

	assignment := make([]int, len(samples))
	for iter := 0; iter < iterations; iter++ {
		for i, s := range samples {
			best, bestDist := 0, math.MaxFloat64
			for c, centroid := range centroids {
				if d := sqDist(s, centroid); d < bestDist {
					best, bestDist = c, d
				}
			}
			assignment[i] = best
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, s := range samples {
			c := assignment[i]
			counts[c]++
			for d, v := range s {
				sums[c][d] += float64(v)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}
	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best, bestDist := 0, math.MaxFloat64
	for c, centroid := range centroids {
		if d := sqDist(v, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
