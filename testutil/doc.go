// Package testutil provides testing utilities for rowstore.
//
// This package is intended for use in tests and benchmarks only. Every
// generator is driven by a seeded, thread-safe RNG so failures reproduce:
//
//	rng := testutil.NewRNG(seed)
//	c := rng.Candidate(42, 128)       // random CandidateData
//	cs := rng.Candidates(1000, 128)   // labels 1..1000
//	d := rng.Delta(7, 128)            // upsert or delete delta
package testutil
