// Package testutil provides testing utilities for knnlm.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random keys, token ids and probability
// rows, computing exact nearest neighbors, and verifying search recall.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	keys := rng.UniformMatrix(1000, 16)  // uniform [-1, 1)
//	probs := rng.Distributions(8, 100)   // rows sum to 1
//	targets := rng.Tokens(8, 100)
//
// # Exact Search (Ground Truth)
//
//	results := testutil.BruteForceSearch(keys, query, k, distance.SquaredL2)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exact, approx)
package testutil
