package geom

import "math"

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// DistanceSquared avoids the square root for comparisons.
func DistanceSquared(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// Range is the distance of a sensor-frame point from the sensor origin.
func Range(obs Point) float64 {
	return math.Hypot(obs.X, obs.Y)
}
