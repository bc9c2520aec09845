package pf

import (
	"github.com/banshee-data/localizer/internal/config"
	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/likelihood"
)

// Config holds the filter parameters.
type Config struct {
	ParticleCount int    // N, fixed for the lifetime of the filter
	Seed          uint64 // root seed for every random stream
	Workers       int    // goroutines for predict/weight; 0 = GOMAXPROCS

	InitStd        geom.StdDev // spread used by Step callers for Init
	ProcessStd     geom.StdDev // motion noise used by Step
	YawRateEpsilon float64     // below this |yaw rate| motion is straight

	LandmarkStd  likelihood.StdDev
	SensorRange  float64 // metres; <= 0 keeps every observation
	Association  string  // "linear" or "grid"
	GridCellSize float64 // metres, grid association only

	LogWeights         bool // accumulate log densities instead of a raw product
	RejectNonFinite    bool
	RecordAssociations bool
}

// DefaultConfig returns filter configuration loaded from the canonical
// tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded LocalizerConfig.
func ConfigFromTuning(cfg *config.LocalizerConfig) Config {
	return Config{
		ParticleCount: cfg.GetParticleCount(),
		Seed:          cfg.GetSeed(),
		Workers:       cfg.GetWorkers(),
		InitStd: geom.StdDev{
			X:     cfg.GetInitStdX(),
			Y:     cfg.GetInitStdY(),
			Theta: cfg.GetInitStdTheta(),
		},
		ProcessStd: geom.StdDev{
			X:     cfg.GetProcessStdX(),
			Y:     cfg.GetProcessStdY(),
			Theta: cfg.GetProcessStdTheta(),
		},
		YawRateEpsilon: cfg.GetYawRateEpsilon(),
		LandmarkStd: likelihood.StdDev{
			X: cfg.GetLandmarkStdX(),
			Y: cfg.GetLandmarkStdY(),
		},
		SensorRange:        cfg.GetSensorRange(),
		Association:        cfg.GetAssociation(),
		GridCellSize:       cfg.GetGridCellSize(),
		LogWeights:         cfg.GetWeightMode() == config.WeightModeLog,
		RejectNonFinite:    cfg.GetRejectNonFinite(),
		RecordAssociations: cfg.GetRecordAssociations(),
	}
}
