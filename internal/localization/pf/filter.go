package pf

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/localizer/internal/localization/association"
	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
)

// Filter is the filter cycle controller. It exclusively owns its particle
// set; callers must not use a Filter from more than one goroutine at a time.
type Filter struct {
	cfg   Config
	m     *landmarks.Map
	assoc association.Associator

	set         *Set
	rng         *streams
	initialized bool
	step        int
	// set after Resample: drawn particles still carry their ancestors'
	// weights, but the generation itself is equally weighted
	resampled bool

	// per-slot log weights, only used with Config.LogWeights
	logw []float64
	// resampling scratch
	norm []float64
}

// StepStats summarises one predict/weight/resample cycle. Weight figures are
// taken after weighting and before resampling.
type StepStats struct {
	Step                int
	Observations        int // observations supplied
	InRange             int // observations kept by the sensor range filter
	WeightSum           float64
	MaxWeight           float64
	EffectiveSampleSize float64
	Degenerate          bool      // all weights were zero; resampled uniformly
	Estimate            geom.Pose // weighted mean pose before resampling
}

// New creates a filter over the landmark map m. Init must run before the
// filter can be stepped.
func New(cfg Config, m *landmarks.Map) (*Filter, error) {
	if cfg.ParticleCount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidParticleCount, cfg.ParticleCount)
	}
	if m.Len() == 0 {
		return nil, landmarks.ErrEmptyMap
	}
	assoc, err := association.New(cfg.Association, m, cfg.GridCellSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build associator: %w", err)
	}

	return &Filter{
		cfg:   cfg,
		m:     m,
		assoc: assoc,
	}, nil
}

// Config returns the configuration the filter was built with.
func (f *Filter) Config() Config { return f.cfg }

// Map returns the landmark map.
func (f *Filter) Map() *landmarks.Map { return f.m }

// Initialized reports whether Init has run.
func (f *Filter) Initialized() bool { return f.initialized }

// Len returns the particle count.
func (f *Filter) Len() int { return f.cfg.ParticleCount }

// Init samples N particles around estimate with the given per-axis spread.
// Every particle starts with weight 1 and ids run 0..N-1. Calling Init again
// discards the population and reseeds every random stream.
func (f *Filter) Init(estimate geom.Pose, std geom.StdDev) error {
	n := f.cfg.ParticleCount
	if n <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidParticleCount, n)
	}
	if f.cfg.RejectNonFinite && (!estimate.Finite() || !std.Finite()) {
		return fmt.Errorf("%w: init estimate %+v std %+v", ErrNonFinite, estimate, std)
	}
	if std.X < 0 || std.Y < 0 || std.Theta < 0 {
		return fmt.Errorf("%w: init std %+v", ErrInvalidStdDev, std)
	}

	f.set = newSet(n)
	f.rng = newStreams(f.cfg.Seed, n)
	f.logw = make([]float64, n)
	f.norm = make([]float64, n)
	f.step = 0
	f.resampled = false

	for i := 0; i < n; i++ {
		p := f.set.at(i)
		p.ID = i
		p.Pose = samplePose(f.rng.slots[i], estimate, std)
		p.Weight = 1.0
	}
	f.initialized = true

	diagf("initialized %d particles around (%.3f, %.3f, %.3f)", n, estimate.X, estimate.Y, estimate.Theta)
	return nil
}

// Predict advances every particle through the motion model and then draws
// each pose component from a normal centred on the propagated pose.
func (f *Filter) Predict(dt float64, std geom.StdDev, velocity, yawRate float64) error {
	if !f.initialized {
		return ErrNotInitialized
	}
	c := Control{DeltaT: dt, Velocity: velocity, YawRate: yawRate}
	if f.cfg.RejectNonFinite && (!c.Finite() || !std.Finite()) {
		opsf("rejected non-finite control %+v std %+v", c, std)
		return fmt.Errorf("%w: control %+v std %+v", ErrNonFinite, c, std)
	}
	if std.X < 0 || std.Y < 0 || std.Theta < 0 {
		return fmt.Errorf("%w: process std %+v", ErrInvalidStdDev, std)
	}

	eps := f.cfg.YawRateEpsilon
	return f.parallel(func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			p := f.set.at(i)
			p.Pose = samplePose(f.rng.slots[i], Propagate(p.Pose, c, eps), std)
		}
		return nil
	})
}

// Step runs one full filter cycle using the configured noise parameters:
// Predict, UpdateWeights, Resample. Observations are validated before
// Predict, so a rejected step leaves the particle set unchanged. The context
// is checked between phases only; a phase that has started always completes.
func (f *Filter) Step(ctx context.Context, c Control, observations []geom.Point) (StepStats, error) {
	stats := StepStats{Step: f.step + 1, Observations: len(observations)}
	if !f.initialized {
		return stats, ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	// Reject a bad measurement before prediction moves any particle.
	if err := f.checkMeasurement(f.cfg.LandmarkStd, observations); err != nil {
		return stats, fmt.Errorf("update weights: %w", err)
	}
	if err := f.Predict(c.DeltaT, f.cfg.ProcessStd, c.Velocity, c.YawRate); err != nil {
		return stats, fmt.Errorf("predict: %w", err)
	}
	inRange, err := f.UpdateWeights(f.cfg.SensorRange, f.cfg.LandmarkStd, observations)
	if err != nil {
		return stats, fmt.Errorf("update weights: %w", err)
	}
	stats.InRange = inRange

	f.summarize(&stats)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	degenerate, err := f.Resample()
	if err != nil {
		return stats, fmt.Errorf("resample: %w", err)
	}
	stats.Degenerate = degenerate

	diagf("step %d: obs=%d in_range=%d sum=%.3g max=%.3g ess=%.1f est=(%.3f, %.3f, %.3f) degenerate=%v",
		stats.Step, stats.Observations, stats.InRange, stats.WeightSum, stats.MaxWeight,
		stats.EffectiveSampleSize, stats.Estimate.X, stats.Estimate.Y, stats.Estimate.Theta, stats.Degenerate)
	return stats, nil
}

// Particles returns a deep copy of the current generation.
func (f *Filter) Particles() ([]Particle, error) {
	if !f.initialized {
		return nil, ErrNotInitialized
	}
	return f.set.snapshot(), nil
}

// Best returns a copy of the highest-weight particle. Ties go to the lowest
// slot.
func (f *Filter) Best() (Particle, error) {
	if !f.initialized {
		return Particle{}, ErrNotInitialized
	}
	best := 0
	for i := 1; i < f.set.Len(); i++ {
		if f.set.at(i).Weight > f.set.at(best).Weight {
			best = i
		}
	}
	return f.set.at(best).Clone(), nil
}

// Estimate returns the weighted mean pose of the current generation. Heading
// is a circular mean in (-pi, pi]. Particles count equally right after
// Resample, or if every weight is zero.
func (f *Filter) Estimate() (geom.Pose, error) {
	if !f.initialized {
		return geom.Pose{}, ErrNotInitialized
	}
	return f.weightedMean(), nil
}

func (f *Filter) weightedMean() geom.Pose {
	n := f.set.Len()
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += f.set.at(i).Weight
	}
	uniform := f.resampled || !(sum > 0) || math.IsInf(sum, 0)

	var x, y, s, c float64
	for i := 0; i < n; i++ {
		p := f.set.at(i)
		w := 1.0 / float64(n)
		if !uniform {
			w = p.Weight / sum
		}
		x += w * p.Pose.X
		y += w * p.Pose.Y
		s += w * math.Sin(p.Pose.Theta)
		c += w * math.Cos(p.Pose.Theta)
	}
	return geom.Pose{X: x, Y: y, Theta: math.Atan2(s, c)}
}

func (f *Filter) summarize(stats *StepStats) {
	n := f.set.Len()
	sumSq := 0.0
	for i := 0; i < n; i++ {
		w := f.set.at(i).Weight
		stats.WeightSum += w
		sumSq += w * w
		if w > stats.MaxWeight {
			stats.MaxWeight = w
		}
	}
	if sumSq > 0 {
		stats.EffectiveSampleSize = stats.WeightSum * stats.WeightSum / sumSq
	}
	stats.Estimate = f.weightedMean()
}

func (f *Filter) workers() int {
	w := f.cfg.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	return max(1, min(w, f.set.Len()))
}

// parallel splits the particle slots into one contiguous range per worker
// and waits for all of them.
func (f *Filter) parallel(fn func(lo, hi int) error) error {
	n := f.set.Len()
	workers := f.workers()
	if workers == 1 {
		return fn(0, n)
	}

	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error { return fn(lo, hi) })
	}
	return g.Wait()
}
