package pf

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
	"github.com/banshee-data/localizer/internal/localization/likelihood"
)

func TestNewRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	m := testMap(t, landmarks.Landmark{ID: 1})

	_, err := New(testConfig(0), m)
	assert.True(t, errors.Is(err, ErrInvalidParticleCount), "got %v", err)

	_, err = New(testConfig(-5), m)
	assert.True(t, errors.Is(err, ErrInvalidParticleCount), "got %v", err)

	_, err = New(testConfig(10), nil)
	assert.True(t, errors.Is(err, landmarks.ErrEmptyMap), "got %v", err)

	cfg := testConfig(10)
	cfg.Association = "octree"
	_, err = New(cfg, m)
	assert.Error(t, err)
}

func TestUseBeforeInit(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(10), testMap(t, landmarks.Landmark{ID: 1}))
	assert.False(t, f.Initialized())

	assert.ErrorIs(t, f.Predict(1, geom.StdDev{}, 1, 0), ErrNotInitialized)
	_, err := f.UpdateWeights(50, likelihood.StdDev{X: 1, Y: 1}, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.Resample()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.Step(context.Background(), Control{DeltaT: 1}, nil)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.Particles()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.Best()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.Estimate()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInit(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 7, 200} {
		f := newTestFilter(t, testConfig(n), testMap(t, landmarks.Landmark{ID: 1}))
		require.NoError(t, f.Init(geom.Pose{X: 4, Y: 2, Theta: 1}, geom.StdDev{X: 0.3, Y: 0.3, Theta: 0.01}))
		require.True(t, f.Initialized())

		ps, err := f.Particles()
		require.NoError(t, err)
		require.Len(t, ps, n)
		for i, p := range ps {
			assert.Equal(t, i, p.ID)
			assert.Equal(t, 1.0, p.Weight)
		}
	}
}

func TestInitMeanConverges(t *testing.T) {
	t.Parallel()

	estimate := geom.Pose{X: 10, Y: -5, Theta: 0.5}
	std := geom.StdDev{X: 2, Y: 1, Theta: 0.2}

	for _, n := range []int{100, 10000} {
		f := newTestFilter(t, testConfig(n), testMap(t, landmarks.Landmark{ID: 1}))
		require.NoError(t, f.Init(estimate, std))
		ps, _ := f.Particles()

		var mx, my, mt float64
		for _, p := range ps {
			mx += p.Pose.X
			my += p.Pose.Y
			mt += p.Pose.Theta
		}
		mx /= float64(n)
		my /= float64(n)
		mt /= float64(n)

		// Five standard errors.
		se := 5 / math.Sqrt(float64(n))
		assert.InDelta(t, estimate.X, mx, std.X*se)
		assert.InDelta(t, estimate.Y, my, std.Y*se)
		assert.InDelta(t, estimate.Theta, mt, std.Theta*se)

		if n == 10000 {
			assert.Less(t, math.Hypot(mx-estimate.X, my-estimate.Y), 0.1)
		}
	}
}

func TestInitRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(10), testMap(t, landmarks.Landmark{ID: 1}))
	assert.ErrorIs(t, f.Init(geom.Pose{X: math.NaN()}, geom.StdDev{}), ErrNonFinite)
	assert.ErrorIs(t, f.Init(geom.Pose{}, geom.StdDev{X: -1}), ErrInvalidStdDev)
	assert.False(t, f.Initialized())
}

func TestPredictNoiseFree(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(50), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{X: 1, Y: 1, Theta: 0.5}))
	before, _ := f.Particles()

	c := Control{DeltaT: 0.1, Velocity: 5, YawRate: 0.3}
	require.NoError(t, f.Predict(c.DeltaT, geom.StdDev{}, c.Velocity, c.YawRate))
	after, _ := f.Particles()

	for i := range before {
		want := Propagate(before[i].Pose, c, 1e-4)
		assert.Equal(t, want, after[i].Pose, "particle %d", i)
	}
}

func TestPredictFromOrigin(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(3), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))

	require.NoError(t, f.Predict(1, geom.StdDev{}, 1, 0))
	ps, _ := f.Particles()
	for _, p := range ps {
		assert.InDelta(t, 1, p.Pose.X, 1e-12)
		assert.InDelta(t, 0, p.Pose.Y, 1e-12)
		assert.InDelta(t, 0, p.Pose.Theta, 1e-12)
	}
}

func TestPredictNoiseSpreadsParticles(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(2000), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))
	std := geom.StdDev{X: 0.5, Y: 0.2, Theta: 0.05}
	require.NoError(t, f.Predict(1, std, 2, 0))

	ps, _ := f.Particles()
	var sx, sxx, sy, syy float64
	for _, p := range ps {
		sx += p.Pose.X
		sxx += p.Pose.X * p.Pose.X
		sy += p.Pose.Y
		syy += p.Pose.Y * p.Pose.Y
	}
	n := float64(len(ps))
	mx, my := sx/n, sy/n
	vx, vy := sxx/n-mx*mx, syy/n-my*my

	assert.InDelta(t, 2, mx, 0.05)
	assert.InDelta(t, 0, my, 0.02)
	assert.InDelta(t, std.X, math.Sqrt(vx), 0.05)
	assert.InDelta(t, std.Y, math.Sqrt(vy), 0.02)
}

func TestPredictRejectsNonFinite(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(5), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))
	before, _ := f.Particles()

	assert.ErrorIs(t, f.Predict(1, geom.StdDev{}, math.NaN(), 0), ErrNonFinite)
	assert.ErrorIs(t, f.Predict(math.Inf(1), geom.StdDev{}, 1, 0), ErrNonFinite)
	assert.ErrorIs(t, f.Predict(1, geom.StdDev{X: -0.1}, 1, 0), ErrInvalidStdDev)

	after, _ := f.Particles()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rejected predict mutated particles (-before +after):\n%s", diff)
	}
}

func TestStepRejectsNonFiniteObservationBeforeMoving(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(5), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))
	before, _ := f.Particles()

	c := Control{DeltaT: 1, Velocity: 10}
	_, err := f.Step(context.Background(), c, []geom.Point{{X: 1, Y: 1}, {X: math.NaN()}})
	assert.ErrorIs(t, err, ErrNonFinite)
	_, err = f.Step(context.Background(), c, []geom.Point{{Y: math.Inf(-1)}})
	assert.ErrorIs(t, err, ErrNonFinite)

	after, _ := f.Particles()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rejected step mutated particles (-before +after):\n%s", diff)
	}

	// The next good frame is step 1 and moves the particles as usual.
	stats, err := f.Step(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Step)
	ps, _ := f.Particles()
	assert.InDelta(t, 10, ps[0].Pose.X, 1e-9)
}

func TestNonFinitePropagatesWhenNotRejected(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2)
	cfg.RejectNonFinite = false
	f := newTestFilter(t, cfg, testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))
	require.NoError(t, f.Predict(1, geom.StdDev{}, math.NaN(), 0))

	ps, _ := f.Particles()
	assert.True(t, math.IsNaN(ps[0].Pose.X))
}

func TestUpdateWeightsExactMatch(t *testing.T) {
	t.Parallel()

	m := testMap(t,
		landmarks.Landmark{ID: 1, X: 5, Y: 0},
		landmarks.Landmark{ID: 2, X: 0, Y: 5},
	)
	f := newTestFilter(t, testConfig(4), m)
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))

	std := likelihood.StdDev{X: 0.3, Y: 0.3}
	kept, err := f.UpdateWeights(50, std, []geom.Point{{X: 5, Y: 0}, {X: 0, Y: 5}})
	require.NoError(t, err)
	assert.Equal(t, 2, kept)

	peak := likelihood.Peak(std)
	ps, _ := f.Particles()
	for _, p := range ps {
		assert.InEpsilon(t, peak*peak, p.Weight, 1e-9)
		assert.Equal(t, []int{1, 2}, p.Associations)
		assert.InDeltaSlice(t, []float64{5, 0}, p.SenseX, 1e-12)
		assert.InDeltaSlice(t, []float64{0, 5}, p.SenseY, 1e-12)
	}
}

func TestUpdateWeightsUsesIdentifierLookup(t *testing.T) {
	t.Parallel()

	// Identifiers are sparse and out of storage order.
	m := testMap(t,
		landmarks.Landmark{ID: 30, X: 100, Y: 100},
		landmarks.Landmark{ID: 4, X: 2, Y: 0},
	)
	f := newTestFilter(t, testConfig(1), m)
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))

	std := likelihood.StdDev{X: 0.5, Y: 0.5}
	_, err := f.UpdateWeights(0, std, []geom.Point{{X: 2, Y: 0}})
	require.NoError(t, err)

	best, _ := f.Best()
	assert.Equal(t, []int{4}, best.Associations)
	assert.InEpsilon(t, likelihood.Peak(std), best.Weight, 1e-9)
}

func TestUpdateWeightsSensorRange(t *testing.T) {
	t.Parallel()

	m := testMap(t, landmarks.Landmark{ID: 1, X: 5, Y: 0}, landmarks.Landmark{ID: 2, X: 80, Y: 0})
	f := newTestFilter(t, testConfig(1), m)
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))

	std := likelihood.StdDev{X: 0.3, Y: 0.3}
	obs := []geom.Point{{X: 5, Y: 0}, {X: 80, Y: 0}}

	kept, err := f.UpdateWeights(50, std, obs)
	require.NoError(t, err)
	assert.Equal(t, 1, kept)
	best, _ := f.Best()
	assert.Equal(t, []int{1}, best.Associations)

	// Range filtering off keeps both.
	kept, err = f.UpdateWeights(0, std, obs)
	require.NoError(t, err)
	assert.Equal(t, 2, kept)
	best, _ = f.Best()
	assert.Equal(t, []int{1, 2}, best.Associations)
}

func TestUpdateWeightsGridFarParticle(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1)
	cfg.Association = "grid"
	cfg.GridCellSize = 1
	f := newTestFilter(t, cfg, testMap(t, landmarks.Landmark{ID: 1}, landmarks.Landmark{ID: 2, X: 1e6}))
	require.NoError(t, f.Init(geom.Pose{X: 1e20}, geom.StdDev{}))

	var err error
	assert.NotPanics(t, func() {
		_, err = f.UpdateWeights(0, cfg.LandmarkStd, []geom.Point{{X: 1}})
	})
	require.NoError(t, err)
	ps, _ := f.Particles()
	assert.Equal(t, []int{2}, ps[0].Associations)
}

func TestUpdateWeightsEmptyBatch(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(5), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{X: 1, Y: 1}))
	kept, err := f.UpdateWeights(50, likelihood.StdDev{X: 1, Y: 1}, nil)
	require.NoError(t, err)
	assert.Zero(t, kept)

	ps, _ := f.Particles()
	for _, p := range ps {
		assert.Equal(t, 1.0, p.Weight)
		assert.Empty(t, p.Associations)
	}
}

func TestUpdateWeightsRejectsBadInput(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(5), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))

	_, err := f.UpdateWeights(50, likelihood.StdDev{X: 0, Y: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidStdDev)
	_, err = f.UpdateWeights(50, likelihood.StdDev{X: 1, Y: 1}, []geom.Point{{X: math.Inf(1)}})
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestLogWeightsPreserveRanking(t *testing.T) {
	t.Parallel()

	m := testMap(t,
		landmarks.Landmark{ID: 1, X: 5, Y: 1},
		landmarks.Landmark{ID: 2, X: -3, Y: 4},
	)
	obs := []geom.Point{{X: 5, Y: 1}, {X: -3, Y: 4}}
	std := likelihood.StdDev{X: 0.3, Y: 0.3}

	run := func(logMode bool) []Particle {
		cfg := testConfig(100)
		cfg.LogWeights = logMode
		f := newTestFilter(t, cfg, m)
		require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{X: 0.2, Y: 0.2, Theta: 0.02}))
		_, err := f.UpdateWeights(0, std, obs)
		require.NoError(t, err)
		ps, _ := f.Particles()
		return ps
	}
	prod := run(false)
	logw := run(true)

	maxLog := 0.0
	for i := range prod {
		require.Equal(t, prod[i].Pose, logw[i].Pose, "same seed must give same particles")
		maxLog = math.Max(maxLog, logw[i].Weight)
		for j := range prod {
			if prod[i].Weight > prod[j].Weight {
				assert.Greater(t, logw[i].Weight, logw[j].Weight, "ranking of %d vs %d", i, j)
			}
		}
	}
	assert.InDelta(t, 1.0, maxLog, 1e-12)
}

func TestLogWeightsAvoidUnderflow(t *testing.T) {
	t.Parallel()

	m := testMap(t, landmarks.Landmark{ID: 1, X: 0, Y: 0})
	cfg := testConfig(20)
	cfg.LogWeights = true
	f := newTestFilter(t, cfg, m)
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{X: 1, Y: 1}))

	_, err := f.UpdateWeights(0, likelihood.StdDev{X: 0.3, Y: 0.3}, []geom.Point{{X: 500, Y: 500}})
	require.NoError(t, err)
	degenerate, err := f.Resample()
	require.NoError(t, err)
	assert.False(t, degenerate)
}

func TestStepReproducibleAcrossWorkerCounts(t *testing.T) {
	t.Parallel()

	m := testMap(t,
		landmarks.Landmark{ID: 1, X: 5, Y: 3},
		landmarks.Landmark{ID: 2, X: 2, Y: 1},
		landmarks.Landmark{ID: 3, X: 6, Y: 1},
		landmarks.Landmark{ID: 4, X: 7, Y: 4},
	)
	run := func(workers int) []Particle {
		cfg := testConfig(257)
		cfg.Workers = workers
		cfg.ProcessStd = geom.StdDev{X: 0.1, Y: 0.1, Theta: 0.01}
		f := newTestFilter(t, cfg, m)
		require.NoError(t, f.Init(geom.Pose{X: 1, Y: 1}, geom.StdDev{X: 0.3, Y: 0.3, Theta: 0.05}))
		for i := 0; i < 5; i++ {
			_, err := f.Step(context.Background(), Control{DeltaT: 0.1, Velocity: 2, YawRate: 0.2},
				[]geom.Point{{X: 2, Y: 2}, {X: 3, Y: -1}})
			require.NoError(t, err)
		}
		ps, _ := f.Particles()
		return ps
	}

	single := run(1)
	for _, w := range []int{2, 3, 8, 0} {
		if diff := cmp.Diff(single, run(w)); diff != "" {
			t.Fatalf("workers=%d diverged from single worker (-1 +%d):\n%s", w, w, diff)
		}
	}
}

func TestStepHonoursCancellation(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(10), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))
	before, _ := f.Particles()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Step(ctx, Control{DeltaT: 1, Velocity: 1}, nil)
	assert.ErrorIs(t, err, context.Canceled)

	after, _ := f.Particles()
	assert.Empty(t, cmp.Diff(before, after))
}

func TestStepStats(t *testing.T) {
	t.Parallel()

	m := testMap(t, landmarks.Landmark{ID: 1, X: 5, Y: 0})
	cfg := testConfig(10)
	cfg.SensorRange = 50
	f := newTestFilter(t, cfg, m)
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))

	stats, err := f.Step(context.Background(), Control{DeltaT: 0}, []geom.Point{{X: 5, Y: 0}, {X: 90, Y: 0}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Step)
	assert.Equal(t, 2, stats.Observations)
	assert.Equal(t, 1, stats.InRange)
	assert.False(t, stats.Degenerate)
	// All particles identical: ESS equals N.
	assert.InDelta(t, 10, stats.EffectiveSampleSize, 1e-9)
	assert.InEpsilon(t, 10*likelihood.Peak(cfg.LandmarkStd), stats.WeightSum, 1e-9)
	assert.InDelta(t, 0, stats.Estimate.X, 1e-12)

	stats, err = f.Step(context.Background(), Control{DeltaT: 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Step)
}

func TestEstimateWeightedMean(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, testConfig(2), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))

	f.set.at(0).Pose = geom.Pose{X: 0, Y: 0, Theta: math.Pi - 0.1}
	f.set.at(1).Pose = geom.Pose{X: 4, Y: 8, Theta: -math.Pi + 0.1}
	f.set.at(0).Weight = 3
	f.set.at(1).Weight = 1

	est, err := f.Estimate()
	require.NoError(t, err)
	assert.InDelta(t, 1, est.X, 1e-12)
	assert.InDelta(t, 2, est.Y, 1e-12)
	// Headings either side of +-pi average to pi, not 0.
	assert.InDelta(t, math.Pi, math.Abs(est.Theta), 0.1)

	f.set.at(0).Weight = 0
	f.set.at(1).Weight = 0
	est, _ = f.Estimate()
	assert.InDelta(t, 2, est.X, 1e-12)
}

func TestEstimateAfterResampleIsUnweighted(t *testing.T) {
	t.Parallel()

	const n = 4000
	f := newTestFilter(t, testConfig(n), testMap(t, landmarks.Landmark{ID: 1}))
	require.NoError(t, f.Init(geom.Pose{}, geom.StdDev{}))
	for i := 0; i < n; i++ {
		p := f.set.at(i)
		if i%2 == 0 {
			p.Pose.X, p.Weight = 0, 3
		} else {
			p.Pose.X, p.Weight = 4, 1
		}
	}

	est, err := f.Estimate()
	require.NoError(t, err)
	assert.InDelta(t, 1, est.X, 1e-9)

	_, err = f.Resample()
	require.NoError(t, err)

	// Survivors keep their ancestors' weights, but the resampled population
	// already encodes them; reweighting would pull the mean towards x=0.
	est, err = f.Estimate()
	require.NoError(t, err)
	assert.InDelta(t, 1, est.X, 0.15)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 200, cfg.ParticleCount)
	assert.Equal(t, 1e-4, cfg.YawRateEpsilon)
	assert.False(t, cfg.LogWeights)
	assert.True(t, cfg.RejectNonFinite)
	assert.Equal(t, "linear", cfg.Association)
}
