// Package testutil provides testing utilities for plsago.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded random source and generators for co-occurrence
// matrices drawn from a known mixture model.
//
// # Random Source
//
//	rng := testutil.NewRNG(seed)
//	p := rng.Distribution(8) // random point on the simplex
//
// # Synthetic Co-occurrences
//
//	mix := testutil.BlockMixture(2, 4, 4, 0.1)
//	co := mix.Matrix(1000) // expected counts of 1000 observations
package testutil
