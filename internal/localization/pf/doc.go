// Package pf is the Monte Carlo localization core: a particle filter over a
// 2D pose (x, y, heading) driven by velocity/yaw-rate control and
// range-bearing landmark observations.
//
// One filtering step is Predict (bicycle motion model plus Gaussian process
// noise), UpdateWeights (transform each observation into the map frame per
// particle, nearest-neighbour association, product of bivariate Gaussian
// likelihoods) and Resample (draw N particles with replacement in proportion
// to normalized weight).
//
// Predict and UpdateWeights fan out across worker goroutines, each owning a
// contiguous run of particles. Every particle slot has its own seeded random
// stream, so results depend only on the root seed, never on the worker count.
// Resample runs after all workers finish and writes a fresh generation into
// a spare buffer before swapping it in.
//
// Dependency rule: pf may depend on geom, landmarks, association and
// likelihood. No I/O, storage or plotting code belongs here.
package pf
