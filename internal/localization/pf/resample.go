package pf

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Resample replaces the population with N particles drawn with replacement
// in proportion to normalized weight. Weights are normalized in place first.
// If the weights sum to zero (or are not finite) the draw is uniform over
// all particles and degenerate is true.
//
// The new generation is built in the spare buffer and swapped in at the
// end, so callers never observe a half-replaced set. Drawn particles keep
// their ancestor's ID, pose, weight and association record; Estimate treats
// the new generation as equally weighted until the next UpdateWeights.
func (f *Filter) Resample() (degenerate bool, err error) {
	if !f.initialized {
		return false, ErrNotInitialized
	}

	n := f.set.Len()
	w := f.norm
	for i := 0; i < n; i++ {
		w[i] = f.set.at(i).Weight
	}
	sum := floats.Sum(w)

	var draw func() int
	if sum > 0 && !math.IsInf(sum, 0) {
		floats.Scale(1/sum, w)
		for i := 0; i < n; i++ {
			f.set.at(i).Weight = w[i]
		}
		cat := distuv.NewCategorical(w, f.rng.resample)
		draw = func() int { return int(cat.Rand()) }
	} else {
		degenerate = true
		opsf("degenerate weights (sum=%v) at step %d: resampling uniformly", sum, f.step+1)
		rng := rand.New(f.rng.resample)
		draw = func() int { return rng.IntN(n) }
	}

	for i := 0; i < n; i++ {
		copyInto(&f.set.spare[i], f.set.at(draw()))
	}
	f.set.swap()
	f.resampled = true
	f.step++

	if traceLogger != nil {
		best, _ := f.Best()
		tracef("step %d best particle id=%d pose=(%.3f, %.3f, %.3f) w=%.3g", f.step, best.ID, best.Pose.X, best.Pose.Y, best.Pose.Theta, best.Weight)
	}
	return degenerate, nil
}
