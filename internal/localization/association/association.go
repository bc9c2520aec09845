package association

import (
	"fmt"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
)

// Observation is a single landmark sighting. Before association X and Y are
// usually in the map frame; ID is written by Associate.
type Observation struct {
	X  float64
	Y  float64
	ID int
}

// Point returns the observation coordinates.
func (o Observation) Point() geom.Point {
	return geom.Point{X: o.X, Y: o.Y}
}

// Associator finds the nearest landmark to a map-frame point.
type Associator interface {
	// Nearest returns the storage index of the nearest landmark and its distance.
	Nearest(p geom.Point) (index int, dist float64)
	// Map returns the landmarks searched by Nearest.
	Map() *landmarks.Map
}

// Associate assigns every observation the identifier of its nearest landmark.
func Associate(a Associator, obs []Observation) {
	m := a.Map()
	for i := range obs {
		idx, _ := a.Nearest(obs[i].Point())
		if idx < 0 || idx >= m.Len() {
			idx, _ = (&Linear{m: m}).Nearest(obs[i].Point())
		}
		obs[i].ID = m.At(idx).ID
	}
}

// New returns the associator named by kind ("linear" or "grid").
// cellSize is only used by the grid strategy.
func New(kind string, m *landmarks.Map, cellSize float64) (Associator, error) {
	switch kind {
	case "", "linear":
		return NewLinear(m)
	case "grid":
		return NewGrid(m, cellSize)
	default:
		return nil, fmt.Errorf("unknown association strategy %q", kind)
	}
}
