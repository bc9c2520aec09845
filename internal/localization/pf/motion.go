package pf

import (
	"math"

	"github.com/banshee-data/localizer/internal/localization/geom"
)

// Control is one step of commanded motion.
type Control struct {
	DeltaT   float64 // seconds
	Velocity float64 // m/s
	YawRate  float64 // rad/s
}

// Finite reports whether every component of c is a finite number.
func (c Control) Finite() bool {
	return geom.Pose{X: c.DeltaT, Y: c.Velocity, Theta: c.YawRate}.Finite()
}

// Propagate advances p through the bicycle motion model without noise.
// Yaw rates at or below epsilon in magnitude use the straight-line limit to
// avoid dividing by a near-zero yaw rate. Heading is not wrapped.
func Propagate(p geom.Pose, c Control, epsilon float64) geom.Pose {
	if math.Abs(c.YawRate) > epsilon {
		theta := p.Theta + c.YawRate*c.DeltaT
		k := c.Velocity / c.YawRate
		return geom.Pose{
			X:     p.X + k*(math.Sin(theta)-math.Sin(p.Theta)),
			Y:     p.Y + k*(math.Cos(p.Theta)-math.Cos(theta)),
			Theta: theta,
		}
	}

	d := c.Velocity * c.DeltaT
	return geom.Pose{
		X:     p.X + d*math.Cos(p.Theta),
		Y:     p.Y + d*math.Sin(p.Theta),
		Theta: p.Theta,
	}
}
