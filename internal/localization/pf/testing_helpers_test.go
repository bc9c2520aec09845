package pf

import (
	"testing"

	"github.com/banshee-data/localizer/internal/localization/landmarks"
	"github.com/banshee-data/localizer/internal/localization/likelihood"
)

func testConfig(n int) Config {
	return Config{
		ParticleCount:      n,
		Seed:               42,
		Workers:            1,
		YawRateEpsilon:     1e-4,
		LandmarkStd:        likelihood.StdDev{X: 0.3, Y: 0.3},
		Association:        "linear",
		GridCellSize:       10,
		RejectNonFinite:    true,
		RecordAssociations: true,
	}
}

func testMap(t *testing.T, list ...landmarks.Landmark) *landmarks.Map {
	t.Helper()
	m, err := landmarks.NewMap(list)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	return m
}

func newTestFilter(t *testing.T, cfg Config, m *landmarks.Map) *Filter {
	t.Helper()
	f, err := New(cfg, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}
