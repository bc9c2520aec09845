package scenario

import (
	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/pf"
)

// Frame is one filtering step of input: the control applied since the
// previous frame and the observations taken after it.
type Frame struct {
	DeltaT       float64       `json:"dt"`
	Velocity     float64       `json:"velocity"`
	YawRate      float64       `json:"yaw_rate"`
	Observations []Observation `json:"observations"`

	// GPS is an optional noisy absolute fix used to initialize the filter.
	GPS *Pose `json:"gps,omitempty"`
	// GroundTruth is the true pose after this frame's motion, when known.
	GroundTruth *Pose `json:"ground_truth,omitempty"`
}

// Observation is a sensor-frame landmark sighting.
type Observation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose is the JSON form of geom.Pose.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Geom converts p to a geom.Pose.
func (p Pose) Geom() geom.Pose {
	return geom.Pose{X: p.X, Y: p.Y, Theta: p.Theta}
}

// PoseFrom converts a geom.Pose to its JSON form.
func PoseFrom(p geom.Pose) *Pose {
	return &Pose{X: p.X, Y: p.Y, Theta: p.Theta}
}

// Control returns the frame's control input.
func (f Frame) Control() pf.Control {
	return pf.Control{DeltaT: f.DeltaT, Velocity: f.Velocity, YawRate: f.YawRate}
}

// Points returns the observations as sensor-frame points.
func (f Frame) Points() []geom.Point {
	out := make([]geom.Point, len(f.Observations))
	for i, o := range f.Observations {
		out[i] = geom.Point{X: o.X, Y: o.Y}
	}
	return out
}
