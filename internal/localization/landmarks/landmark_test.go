package landmarks

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewMapRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := NewMap(nil); !errors.Is(err, ErrEmptyMap) {
		t.Fatalf("NewMap(nil) error = %v, want ErrEmptyMap", err)
	}
	if _, err := NewMap([]Landmark{}); !errors.Is(err, ErrEmptyMap) {
		t.Fatalf("NewMap([]) error = %v, want ErrEmptyMap", err)
	}
}

func TestNewMapRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewMap([]Landmark{{ID: 1}, {ID: 2, X: 1}, {ID: 1, X: 5}})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("NewMap error = %v, want ErrDuplicateID", err)
	}
}

func TestNewMapRejectsNonFinite(t *testing.T) {
	t.Parallel()

	if _, err := NewMap([]Landmark{{ID: 1, X: math.NaN()}}); err == nil {
		t.Fatal("expected error for NaN landmark")
	}
}

func TestLookupByIdentifier(t *testing.T) {
	t.Parallel()

	// Sparse, out-of-order identifiers: storage position must not matter.
	m, err := NewMap([]Landmark{
		{ID: 40, X: 1, Y: 1},
		{ID: 7, X: 2, Y: 2},
		{ID: 19, X: 3, Y: 3},
	})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}

	lm, err := m.Lookup(7)
	if err != nil {
		t.Fatalf("Lookup(7): %v", err)
	}
	if lm.X != 2 || lm.Y != 2 {
		t.Errorf("Lookup(7) = %+v, want X=2 Y=2", lm)
	}

	if _, err := m.Lookup(1); !errors.Is(err, ErrUnknownID) {
		t.Errorf("Lookup(1) error = %v, want ErrUnknownID", err)
	}

	if i, ok := m.Index(19); !ok || i != 2 {
		t.Errorf("Index(19) = %d, %v; want 2, true", i, ok)
	}
}

func TestMapIsImmutable(t *testing.T) {
	t.Parallel()

	src := []Landmark{{ID: 1, X: 1}, {ID: 2, X: 2}}
	m, err := NewMap(src)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	src[0].X = 100

	got := m.Landmarks()
	got[1].X = 200

	want := []Landmark{{ID: 1, X: 1}, {ID: 2, X: 2}}
	if diff := cmp.Diff(want, m.Landmarks()); diff != "" {
		t.Errorf("map changed through caller slices (-want +got):\n%s", diff)
	}
}

func TestBounds(t *testing.T) {
	t.Parallel()

	m, err := NewMap([]Landmark{{ID: 1, X: -1, Y: 4}, {ID: 2, X: 3, Y: -2}, {ID: 3, X: 0, Y: 0}})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	lo, hi := m.Bounds()
	if lo.X != -1 || lo.Y != -2 || hi.X != 3 || hi.Y != 4 {
		t.Errorf("Bounds() = %+v, %+v", lo, hi)
	}
}
