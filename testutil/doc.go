// Package testutil provides testing utilities for vecd.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vectors := rng.UniformVectors(1000, 128)  // uniform [0, 1)
//	unit := rng.UnitVectors(1000, 128)        // on the hypersphere
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForceSearch(vectors, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approximate)
package testutil
