package association

import (
	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
)

// Linear is the O(landmarks) nearest-neighbour scan.
type Linear struct {
	m *landmarks.Map
}

// NewLinear returns a Linear associator over m.
func NewLinear(m *landmarks.Map) (*Linear, error) {
	if m.Len() == 0 {
		return nil, landmarks.ErrEmptyMap
	}
	return &Linear{m: m}, nil
}

// Map implements Associator.
func (l *Linear) Map() *landmarks.Map { return l.m }

// Nearest implements Associator. The first landmark reaching the minimum
// distance wins; later landmarks at the same distance do not replace it.
func (l *Linear) Nearest(p geom.Point) (int, float64) {
	best := 0
	bestDist := geom.Distance(p, l.m.At(0).Position())
	for i := 1; i < l.m.Len(); i++ {
		d := geom.Distance(p, l.m.At(i).Position())
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}
