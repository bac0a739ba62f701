// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

// Variant is the capability set every ANN structure backing the
// self-optimizing index implements. The index itself owns the
// position->vector_id and vector_id->metadata maps; a variant only
// ever sees opaque internal keys.
type variant interface {
	Kind() string
	NeedsTraining() bool
	IsTrained() bool
	Train(samples [][]float32)
	Add(key uint64, vec []float32)
	Remove(key uint64)
	Search(query []float32, k int) []scoredKey
	Reconstruct(key uint64) ([]float32, bool)
	Len() int
}

// scoredKey is an internal search hit before it is joined against the
// position->vector_id and vector_id->metadata maps.
type scoredKey struct {
	Key        uint64
	Similarity float32
}

// Tier names the four ANN structures the index auto-selects between.
type Tier string

const (
	TierFlat           Tier = "flat"
	TierInvertedList   Tier = "inverted_list"
	TierGraph          Tier = "graph"
	TierInvertedPQ     Tier = "inverted_pq"
)

// SelectTier picks the index variant for the current population.
func SelectTier(population int, cfg Config) Tier {
	switch {
	case population < cfg.FlatMaxPopulation:
		return TierFlat
	case population < cfg.GraphMaxPopulation:
		return TierInvertedList
	case population < cfg.PQMinPopulation:
		return TierGraph
	default:
		return TierInvertedPQ
	}
}

func newVariant(tier Tier, dim int, cfg Config) variant {
	switch tier {
	case TierInvertedList:
		return newIVFVariant(dim, cfg)
	case TierGraph:
		return newGraphVariant(dim, cfg)
	case TierInvertedPQ:
		return newPQVariant(dim, cfg)
	default:
		return newFlatVariant(dim)
	}
}
