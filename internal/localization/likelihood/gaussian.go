// Package likelihood scores an associated observation against the landmark
// it was matched to with an axis-independent bivariate Gaussian.
package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/localizer/internal/localization/geom"
)

// StdDev is the per-axis measurement standard deviation (metres).
type StdDev struct {
	X float64
	Y float64
}

// Peak returns the density at zero offset, 1/(2*pi*sx*sy).
func Peak(std StdDev) float64 {
	return 1 / (2 * math.Pi * std.X * std.Y)
}

// Density evaluates the bivariate Gaussian centred on the landmark at the
// observation. The axes are independent, so it is the product of two
// univariate normal densities.
func Density(obs, landmark geom.Point, std StdDev) float64 {
	return math.Exp(LogDensity(obs, landmark, std))
}

// LogDensity returns the natural log of Density. Summing these across
// observations and exponentiating late avoids underflow without changing
// the ordering of particles.
func LogDensity(obs, landmark geom.Point, std StdDev) float64 {
	nx := distuv.Normal{Mu: landmark.X, Sigma: std.X}
	ny := distuv.Normal{Mu: landmark.Y, Sigma: std.Y}
	return nx.LogProb(obs.X) + ny.LogProb(obs.Y)
}
