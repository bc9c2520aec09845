package geom

import "math"

// Point is a 2D point in either the sensor frame or the map frame.
type Point struct {
	X float64
	Y float64
}

// Pose is a vehicle pose hypothesis in the map frame.
type Pose struct {
	X     float64
	Y     float64
	Theta float64 // radians, unwrapped
}

// StdDev holds per-axis standard deviations for a pose.
type StdDev struct {
	X     float64
	Y     float64
	Theta float64
}

// Finite reports whether every component of p is a finite number.
func (p Point) Finite() bool {
	return finite(p.X) && finite(p.Y)
}

// Finite reports whether every component of p is a finite number.
func (p Pose) Finite() bool {
	return finite(p.X) && finite(p.Y) && finite(p.Theta)
}

// Finite reports whether every component of s is a finite number.
func (s StdDev) Finite() bool {
	return finite(s.X) && finite(s.Y) && finite(s.Theta)
}

// Position drops the heading.
func (p Pose) Position() Point {
	return Point{X: p.X, Y: p.Y}
}

// ToMap maps a sensor-frame point into the map frame for a vehicle at pose:
// rotate by the heading, then translate to the vehicle position.
func ToMap(pose Pose, obs Point) Point {
	sin, cos := math.Sincos(pose.Theta)
	return Point{
		X: pose.X + cos*obs.X - sin*obs.Y,
		Y: pose.Y + sin*obs.X + cos*obs.Y,
	}
}

// ToSensor is the inverse of ToMap: it expresses a map-frame point in the
// sensor frame of a vehicle at pose.
func ToSensor(pose Pose, world Point) Point {
	sin, cos := math.Sincos(pose.Theta)
	dx := world.X - pose.X
	dy := world.Y - pose.Y
	return Point{
		X: cos*dx + sin*dy,
		Y: -sin*dx + cos*dy,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
