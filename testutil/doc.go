// Package testutil provides testing utilities for vecdir.
//
// This package is intended for use in tests, benchmarks and the CLI's
// synthetic import. It provides a seeded, thread-safe RNG and generators for
// vectors and records.
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformRangeVectors(100, 128) // uniform [-1, 1)
//	recs := testutil.GenerateRecords[uint64](rng, 100, 128)
package testutil
