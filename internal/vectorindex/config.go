// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectorindex

// Config collects the index's tunable thresholds: every one is a field
// here, not a
// constant in this package.
type Config struct {
	// Tier population boundaries.
	FlatMaxPopulation  int // default 10_000
	GraphMaxPopulation int // default 100_000
	PQMinPopulation    int // default 1_000_000

	// Inverted list (IVF) parameters.
	IVFMinClusters   int // default 100
	IVFMaxClusters   int // default 4096
	IVFTrainFraction float64 // fraction of N used to size training sample, default 0.1
	IVFTrainMinSamples int   // default 10_000 (or N if smaller, per spec)

	// Graph (HNSW) parameters.
	GraphM              int // default 32
	GraphEfConstruction int // default 200
	GraphEfSearchMin    int // default 64

	// Product-quantized inverted list parameters.
	PQClusters       int // default 4096
	PQSubQuantizers  int // default 64
	PQBits           int // default 8

	// Deletion and rebuild thresholds.
	SoftRebuildDeletedFraction     float64 // default 0.15
	StartupRebuildDeletedFraction  float64 // default 0.20
	RebuildBatchSize               int     // default 10_000

	// Search over-fetch factor: over-fetch = OverFetchFactor * k.
	OverFetchFactor int // default 2
}

// DefaultConfig returns the stock tier and rebuild thresholds.
func DefaultConfig() Config {
	return Config{
		FlatMaxPopulation:  10_000,
		GraphMaxPopulation: 100_000,
		PQMinPopulation:    1_000_000,

		IVFMinClusters:     100,
		IVFMaxClusters:     4096,
		IVFTrainFraction:   0.1,
		IVFTrainMinSamples: 10_000,

		GraphM:              32,
		GraphEfConstruction: 200,
		GraphEfSearchMin:    64,

		PQClusters:      4096,
		PQSubQuantizers: 64,
		PQBits:          8,

		SoftRebuildDeletedFraction:    0.15,
		StartupRebuildDeletedFraction: 0.20,
		RebuildBatchSize:              10_000,

		OverFetchFactor: 2,
	}
}
