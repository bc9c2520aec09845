// Package landmarks owns the static, known map the localizer matches
// observations against.
//
// A Map is immutable once built. Lookups go through an identifier index
// built at construction, never through storage position, so identifiers
// may be sparse or arrive in any order.
package landmarks

import (
	"errors"
	"fmt"

	"github.com/banshee-data/localizer/internal/localization/geom"
)

var (
	// ErrEmptyMap is returned when a map has no landmarks. A filter cannot
	// associate observations against an empty map.
	ErrEmptyMap = errors.New("landmark map is empty")
	// ErrDuplicateID is returned when two landmarks share an identifier.
	ErrDuplicateID = errors.New("duplicate landmark id")
	// ErrUnknownID is returned by Lookup for identifiers not in the map.
	ErrUnknownID = errors.New("unknown landmark id")
)

// Landmark is a single known map feature.
type Landmark struct {
	ID int
	X  float64
	Y  float64
}

// Position returns the landmark location in the map frame.
func (l Landmark) Position() geom.Point {
	return geom.Point{X: l.X, Y: l.Y}
}

// Map is an ordered, identifier-indexed landmark collection.
type Map struct {
	list []Landmark
	byID map[int]int // landmark id -> index into list
}

// NewMap builds a Map from landmarks in the given order. The order is kept
// because association breaks distance ties by it.
func NewMap(list []Landmark) (*Map, error) {
	if len(list) == 0 {
		return nil, ErrEmptyMap
	}

	m := &Map{
		list: make([]Landmark, len(list)),
		byID: make(map[int]int, len(list)),
	}
	copy(m.list, list)

	for i, lm := range m.list {
		if !lm.Position().Finite() {
			return nil, fmt.Errorf("landmark %d has non-finite position (%v, %v)", lm.ID, lm.X, lm.Y)
		}
		if prev, ok := m.byID[lm.ID]; ok {
			return nil, fmt.Errorf("%w: %d at positions %d and %d", ErrDuplicateID, lm.ID, prev, i)
		}
		m.byID[lm.ID] = i
	}
	return m, nil
}

// Len returns the number of landmarks.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.list)
}

// At returns the landmark at storage position i.
func (m *Map) At(i int) Landmark {
	return m.list[i]
}

// Landmarks returns a copy of the landmarks in map order.
func (m *Map) Landmarks() []Landmark {
	out := make([]Landmark, len(m.list))
	copy(out, m.list)
	return out
}

// Lookup returns the landmark with the given identifier.
func (m *Map) Lookup(id int) (Landmark, error) {
	i, ok := m.byID[id]
	if !ok {
		return Landmark{}, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return m.list[i], nil
}

// Index returns the storage position of the landmark with the given id.
func (m *Map) Index(id int) (int, bool) {
	i, ok := m.byID[id]
	return i, ok
}

// Bounds returns the axis-aligned bounding box of all landmarks.
func (m *Map) Bounds() (min, max geom.Point) {
	min = m.list[0].Position()
	max = min
	for _, lm := range m.list[1:] {
		if lm.X < min.X {
			min.X = lm.X
		}
		if lm.Y < min.Y {
			min.Y = lm.Y
		}
		if lm.X > max.X {
			max.X = lm.X
		}
		if lm.Y > max.Y {
			max.Y = lm.Y
		}
	}
	return min, max
}
