package pf

import "errors"

var (
	// ErrNotInitialized is returned by any operation that needs particles
	// when Init has not run.
	ErrNotInitialized = errors.New("particle filter used before Init")
	// ErrInvalidParticleCount is returned for a non-positive particle count.
	ErrInvalidParticleCount = errors.New("particle count must be positive")
	// ErrNonFinite is returned when NaN or Inf input is rejected at the boundary.
	ErrNonFinite = errors.New("non-finite input")
	// ErrInvalidStdDev is returned for negative noise or non-positive
	// measurement standard deviations.
	ErrInvalidStdDev = errors.New("invalid standard deviation")
)
