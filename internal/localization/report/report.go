// Package report turns filter output into the forms its consumers want:
// space-joined association strings for the best particle and pose error
// metrics against ground truth.
package report

import (
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/pf"
)

// Associations formats p's associated landmark ids as "1 4 7".
func Associations(p pf.Particle) string {
	parts := make([]string, len(p.Associations))
	for i, id := range p.Associations {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

// SenseX formats p's sensed map-frame x coordinates.
func SenseX(p pf.Particle) string {
	return joinFloats(p.SenseX)
}

// SenseY formats p's sensed map-frame y coordinates.
func SenseY(p pf.Particle) string {
	return joinFloats(p.SenseY)
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', 5, 64)
	}
	return strings.Join(parts, " ")
}

// PoseError is the difference between an estimate and the truth.
type PoseError struct {
	X       float64 // absolute error
	Y       float64
	Heading float64 // absolute wrapped heading error in [0, pi]
}

// Position returns the Euclidean position error.
func (e PoseError) Position() float64 {
	return math.Hypot(e.X, e.Y)
}

// Compare returns the error of estimate against truth.
func Compare(estimate, truth geom.Pose) PoseError {
	return PoseError{
		X:       math.Abs(estimate.X - truth.X),
		Y:       math.Abs(estimate.Y - truth.Y),
		Heading: math.Abs(wrapAngle(estimate.Theta - truth.Theta)),
	}
}

// wrapAngle maps a into (-pi, pi].
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Accumulator keeps running error totals over a run.
type Accumulator struct {
	n                    int
	sumX, sumY, sumTheta float64 // squared errors
	MaxPosition          float64
}

// Add records one step's error.
func (a *Accumulator) Add(e PoseError) {
	a.n++
	a.sumX += e.X * e.X
	a.sumY += e.Y * e.Y
	a.sumTheta += e.Heading * e.Heading
	a.MaxPosition = math.Max(a.MaxPosition, e.Position())
}

// Count returns the number of recorded steps.
func (a *Accumulator) Count() int { return a.n }

// RMSE returns the root-mean-square error per axis; zero before any Add.
func (a *Accumulator) RMSE() PoseError {
	if a.n == 0 {
		return PoseError{}
	}
	n := float64(a.n)
	return PoseError{
		X:       math.Sqrt(a.sumX / n),
		Y:       math.Sqrt(a.sumY / n),
		Heading: math.Sqrt(a.sumTheta / n),
	}
}
