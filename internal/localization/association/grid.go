package association

import (
	"fmt"
	"math"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
)

// maxCellIndex bounds cell coordinates so that keys and ring arithmetic stay
// exact and never overflow int.
const maxCellIndex = 1 << 52

type cellKey struct {
	ix, iy int
}

// Grid is a uniform spatial hash over the landmark map. Nearest searches
// square rings of cells outward from the query cell and stops once no
// unsearched cell can hold a closer (or equally close) landmark.
type Grid struct {
	m        *landmarks.Map
	linear   *Linear
	cellSize float64
	cells    map[cellKey][]int // landmark storage indices, ascending

	// occupied cell bounds
	minIx, maxIx int
	minIy, maxIy int
}

// NewGrid indexes m with square cells of the given size (metres).
func NewGrid(m *landmarks.Map, cellSize float64) (*Grid, error) {
	if m.Len() == 0 {
		return nil, landmarks.ErrEmptyMap
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, fmt.Errorf("grid cell size must be positive and finite, got %v", cellSize)
	}

	g := &Grid{
		m:        m,
		linear:   &Linear{m: m},
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
		minIx:    math.MaxInt,
		minIy:    math.MaxInt,
		maxIx:    math.MinInt,
		maxIy:    math.MinInt,
	}
	for i := 0; i < m.Len(); i++ {
		lm := m.At(i)
		if !g.indexable(lm.Position()) {
			return nil, fmt.Errorf("landmark %d at (%g, %g) is outside the grid range for cell size %g", lm.ID, lm.X, lm.Y, cellSize)
		}
		k := g.key(lm.Position())
		g.cells[k] = append(g.cells[k], i)
		g.minIx = min(g.minIx, k.ix)
		g.maxIx = max(g.maxIx, k.ix)
		g.minIy = min(g.minIy, k.iy)
		g.maxIy = max(g.maxIy, k.iy)
	}
	return g, nil
}

// Map implements Associator.
func (g *Grid) Map() *landmarks.Map { return g.m }

// indexable reports whether p maps to a cell key without overflow.
func (g *Grid) indexable(p geom.Point) bool {
	return p.Finite() &&
		math.Abs(p.X/g.cellSize) < maxCellIndex &&
		math.Abs(p.Y/g.cellSize) < maxCellIndex
}

func (g *Grid) key(p geom.Point) cellKey {
	return cellKey{
		ix: int(math.Floor(p.X / g.cellSize)),
		iy: int(math.Floor(p.Y / g.cellSize)),
	}
}

// Nearest implements Associator with the same tie-break as Linear: among
// equidistant landmarks the lowest storage index wins. Points that are not
// finite or lie beyond the cell index range use the linear scan.
func (g *Grid) Nearest(p geom.Point) (int, float64) {
	if !g.indexable(p) {
		return g.linear.Nearest(p)
	}

	c := g.key(p)

	// Rings closer than the occupied bounds are empty; start at the first
	// ring that touches them and stop at the one that covers them all.
	rStart := max(0, g.minIx-c.ix, c.ix-g.maxIx, g.minIy-c.iy, c.iy-g.maxIy)
	rEnd := max(c.ix-g.minIx, g.maxIx-c.ix, c.iy-g.minIy, g.maxIy-c.iy)

	best := -1
	bestDist := math.Inf(1)
	visit := func(k cellKey) {
		for _, i := range g.cells[k] {
			d := geom.Distance(p, g.m.At(i).Position())
			if d < bestDist || (d == bestDist && i < best) {
				best = i
				bestDist = d
			}
		}
	}

	for r := rStart; r <= rEnd; r++ {
		g.visitRing(c, r, visit)
		// Any cell in ring r+1 is more than r cells away from p.
		if best >= 0 && bestDist < float64(r)*g.cellSize {
			break
		}
	}
	if best < 0 {
		return g.linear.Nearest(p)
	}
	return best, bestDist
}

// visitRing calls fn for every occupied-bounds cell at Chebyshev distance r from c.
func (g *Grid) visitRing(c cellKey, r int, fn func(cellKey)) {
	if r == 0 {
		fn(c)
		return
	}

	x0, x1 := max(c.ix-r, g.minIx), min(c.ix+r, g.maxIx)
	for _, iy := range [2]int{c.iy - r, c.iy + r} {
		if iy < g.minIy || iy > g.maxIy {
			continue
		}
		for ix := x0; ix <= x1; ix++ {
			fn(cellKey{ix, iy})
		}
	}

	y0, y1 := max(c.iy-r+1, g.minIy), min(c.iy+r-1, g.maxIy)
	for _, ix := range [2]int{c.ix - r, c.ix + r} {
		if ix < g.minIx || ix > g.maxIx {
			continue
		}
		for iy := y0; iy <= y1; iy++ {
			fn(cellKey{ix, iy})
		}
	}
}
