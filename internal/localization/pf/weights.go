package pf

import (
	"fmt"
	"math"

	"github.com/banshee-data/localizer/internal/localization/association"
	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/likelihood"
)

// UpdateWeights scores every particle against a batch of sensor-frame
// observations. Observations farther than sensorRange from the sensor are
// dropped first (sensorRange <= 0 keeps all). For each particle the kept
// observations are mapped into the map frame, associated with their nearest
// landmark, and the particle weight becomes the product of the Gaussian
// densities. With an empty batch every weight is 1.
//
// It returns the number of observations that survived range filtering.
func (f *Filter) UpdateWeights(sensorRange float64, std likelihood.StdDev, observations []geom.Point) (int, error) {
	if !f.initialized {
		return 0, ErrNotInitialized
	}
	if err := f.checkMeasurement(std, observations); err != nil {
		return 0, err
	}

	obs := make([]geom.Point, 0, len(observations))
	for _, o := range observations {
		if sensorRange > 0 && geom.Range(o) > sensorRange {
			tracef("dropped observation (%.2f, %.2f) beyond sensor range %.1f", o.X, o.Y, sensorRange)
			continue
		}
		obs = append(obs, o)
	}

	logMode := f.cfg.LogWeights
	err := f.parallel(func(lo, hi int) error {
		scratch := make([]association.Observation, len(obs))
		for i := lo; i < hi; i++ {
			lw, w, err := f.weigh(f.set.at(i), obs, std, scratch)
			if err != nil {
				return err
			}
			if logMode {
				f.logw[i] = lw
			} else {
				f.set.at(i).Weight = w
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if logMode {
		f.expLogWeights()
	}
	f.resampled = false
	return len(obs), nil
}

// checkMeasurement validates the landmark noise and, when non-finite input is
// rejected, every observation. It never touches the particle set.
func (f *Filter) checkMeasurement(std likelihood.StdDev, observations []geom.Point) error {
	if !(std.X > 0) || !(std.Y > 0) || math.IsInf(std.X, 0) || math.IsInf(std.Y, 0) {
		return fmt.Errorf("%w: landmark std %+v", ErrInvalidStdDev, std)
	}
	if !f.cfg.RejectNonFinite {
		return nil
	}
	for _, o := range observations {
		if !o.Finite() {
			opsf("rejected non-finite observation %+v", o)
			return fmt.Errorf("%w: observation %+v", ErrNonFinite, o)
		}
	}
	return nil
}

// weigh scores one particle. It returns both the log weight and the raw
// product so either accumulation mode can use it.
func (f *Filter) weigh(p *Particle, obs []geom.Point, std likelihood.StdDev, scratch []association.Observation) (float64, float64, error) {
	for j, o := range obs {
		w := geom.ToMap(p.Pose, o)
		scratch[j] = association.Observation{X: w.X, Y: w.Y}
	}
	association.Associate(f.assoc, scratch)

	record := f.cfg.RecordAssociations
	if record {
		p.clearAssociations()
	}

	logSum := 0.0
	product := 1.0
	for _, o := range scratch {
		lm, err := f.m.Lookup(o.ID)
		if err != nil {
			return 0, 0, err
		}
		if f.cfg.LogWeights {
			logSum += likelihood.LogDensity(o.Point(), lm.Position(), std)
		} else {
			product *= likelihood.Density(o.Point(), lm.Position(), std)
		}
		if record {
			p.recordAssociation(o.ID, o.Point())
		}
	}
	return logSum, product, nil
}

// expLogWeights converts per-slot log weights into weights relative to the
// best particle, exp(lw - max). Ordering is preserved and the best particle
// always has weight 1, so the product never underflows to an all-zero set.
func (f *Filter) expLogWeights() {
	best := math.Inf(-1)
	for _, lw := range f.logw {
		if lw > best {
			best = lw
		}
	}
	for i, lw := range f.logw {
		w := 0.0
		if !math.IsInf(best, -1) && !math.IsNaN(lw) {
			w = math.Exp(lw - best)
		}
		f.set.at(i).Weight = w
	}
}
