package scenario

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
	"github.com/banshee-data/localizer/internal/localization/pf"
)

// SimConfig describes a synthetic drive. The vehicle follows the commanded
// velocity and yaw rate exactly; only the GPS fix and the observations are
// noisy. A zero yaw rate drives a straight line.
type SimConfig struct {
	Steps    int
	DeltaT   float64
	Velocity float64
	YawRate  float64
	Start    geom.Pose

	GPSStd         geom.StdDev
	ObservationStd geom.Point // per-axis sensor-frame noise
	SensorRange    float64    // <= 0 observes every landmark
	Seed           uint64
}

// DefaultSimConfig is a slow left-hand circle starting at the origin.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Steps:          100,
		DeltaT:         0.1,
		Velocity:       5,
		YawRate:        0.2,
		GPSStd:         geom.StdDev{X: 0.3, Y: 0.3, Theta: 0.01},
		ObservationStd: geom.Point{X: 0.3, Y: 0.3},
		SensorRange:    50,
		Seed:           1,
	}
}

// Simulate produces one frame per step over the map m. Frame 0 carries a
// noisy GPS fix of the start pose. Each frame's control moves the vehicle
// from the previous truth pose to the frame's GroundTruth, and its
// observations are taken at that pose.
func Simulate(cfg SimConfig, m *landmarks.Map) ([]Frame, error) {
	if cfg.Steps <= 0 {
		return nil, fmt.Errorf("simulation needs a positive step count, got %d", cfg.Steps)
	}
	if !(cfg.DeltaT > 0) {
		return nil, fmt.Errorf("simulation needs a positive dt, got %f", cfg.DeltaT)
	}
	if m.Len() == 0 {
		return nil, landmarks.ErrEmptyMap
	}
	if !cfg.Start.Finite() || !cfg.GPSStd.Finite() {
		return nil, errors.New("simulation start pose and GPS noise must be finite")
	}

	src := rand.NewPCG(cfg.Seed, 0x5eed)
	noise := func(mean, std float64) float64 {
		if std <= 0 {
			return mean
		}
		return distuv.Normal{Mu: mean, Sigma: std, Src: src}.Rand()
	}

	control := pf.Control{DeltaT: cfg.DeltaT, Velocity: cfg.Velocity, YawRate: cfg.YawRate}
	truth := cfg.Start
	frames := make([]Frame, 0, cfg.Steps)

	for step := 0; step < cfg.Steps; step++ {
		f := Frame{
			DeltaT:   control.DeltaT,
			Velocity: control.Velocity,
			YawRate:  control.YawRate,
		}
		if step == 0 {
			f.GPS = &Pose{
				X:     noise(truth.X, cfg.GPSStd.X),
				Y:     noise(truth.Y, cfg.GPSStd.Y),
				Theta: noise(truth.Theta, cfg.GPSStd.Theta),
			}
		}

		truth = pf.Propagate(truth, control, 1e-4)
		f.GroundTruth = PoseFrom(truth)

		for _, lm := range m.Landmarks() {
			local := geom.ToSensor(truth, lm.Position())
			if cfg.SensorRange > 0 && geom.Range(local) > cfg.SensorRange {
				continue
			}
			f.Observations = append(f.Observations, Observation{
				X: noise(local.X, cfg.ObservationStd.X),
				Y: noise(local.Y, cfg.ObservationStd.Y),
			})
		}
		frames = append(frames, f)
	}

	diagf("simulated %d frames over %d landmarks", len(frames), m.Len())
	return frames, nil
}
