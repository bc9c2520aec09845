package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default localizer values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Association strategies accepted by the association field.
const (
	AssociationLinear = "linear"
	AssociationGrid   = "grid"
)

// Weight accumulation modes accepted by the weight_mode field.
const (
	WeightModeProduct = "product"
	WeightModeLog     = "log"
)

// LocalizerConfig represents the root configuration for the particle filter.
// Every field is optional; the Get* accessors supply defaults for fields
// left out of the JSON file.
type LocalizerConfig struct {
	// Population
	ParticleCount *int    `json:"particle_count,omitempty"`
	Seed          *uint64 `json:"seed,omitempty"`
	Workers       *int    `json:"workers,omitempty"`

	// Initialization spread (GPS-like prior)
	InitStdX     *float64 `json:"init_std_x,omitempty"`
	InitStdY     *float64 `json:"init_std_y,omitempty"`
	InitStdTheta *float64 `json:"init_std_theta,omitempty"`

	// Process noise
	ProcessStdX     *float64 `json:"process_std_x,omitempty"`
	ProcessStdY     *float64 `json:"process_std_y,omitempty"`
	ProcessStdTheta *float64 `json:"process_std_theta,omitempty"`
	YawRateEpsilon  *float64 `json:"yaw_rate_epsilon,omitempty"`

	// Measurement model
	LandmarkStdX *float64 `json:"landmark_std_x,omitempty"`
	LandmarkStdY *float64 `json:"landmark_std_y,omitempty"`
	SensorRange  *float64 `json:"sensor_range,omitempty"` // metres; <= 0 disables range filtering

	// Association and weighting
	Association        *string  `json:"association,omitempty"` // "linear" or "grid"
	GridCellSize       *float64 `json:"grid_cell_size,omitempty"`
	WeightMode         *string  `json:"weight_mode,omitempty"` // "product" or "log"
	RejectNonFinite    *bool    `json:"reject_non_finite,omitempty"`
	RecordAssociations *bool    `json:"record_associations,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyLocalizerConfig returns a LocalizerConfig with all fields set to nil.
// Use LoadLocalizerConfig to load actual values from the defaults file.
func EmptyLocalizerConfig() *LocalizerConfig {
	return &LocalizerConfig{}
}

// LoadLocalizerConfig loads a LocalizerConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to defaults via the Get* methods,
// so partial configs are safe.
func LoadLocalizerConfig(path string) (*LocalizerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLocalizerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *LocalizerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,          // from internal/config/
		"../../../" + DefaultConfigPath,       // from internal/localization/pf/
		"../../../../" + DefaultConfigPath,    // from internal/localization/storage/sqlite/
		"../../../../../" + DefaultConfigPath, // even deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadLocalizerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *LocalizerConfig) Validate() error {
	if c.ParticleCount != nil && *c.ParticleCount <= 0 {
		return fmt.Errorf("particle_count must be positive, got %d", *c.ParticleCount)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	stds := []struct {
		name string
		v    *float64
	}{
		{"init_std_x", c.InitStdX},
		{"init_std_y", c.InitStdY},
		{"init_std_theta", c.InitStdTheta},
		{"process_std_x", c.ProcessStdX},
		{"process_std_y", c.ProcessStdY},
		{"process_std_theta", c.ProcessStdTheta},
	}
	for _, s := range stds {
		if s.v != nil && (*s.v < 0 || math.IsNaN(*s.v) || math.IsInf(*s.v, 0)) {
			return fmt.Errorf("%s must be a finite non-negative value, got %f", s.name, *s.v)
		}
	}

	// The likelihood divides by these, so zero is not allowed.
	if c.LandmarkStdX != nil && !(*c.LandmarkStdX > 0) {
		return fmt.Errorf("landmark_std_x must be positive, got %f", *c.LandmarkStdX)
	}
	if c.LandmarkStdY != nil && !(*c.LandmarkStdY > 0) {
		return fmt.Errorf("landmark_std_y must be positive, got %f", *c.LandmarkStdY)
	}

	if c.YawRateEpsilon != nil && *c.YawRateEpsilon < 0 {
		return fmt.Errorf("yaw_rate_epsilon must be non-negative, got %f", *c.YawRateEpsilon)
	}

	if c.Association != nil {
		switch *c.Association {
		case AssociationLinear, AssociationGrid:
		default:
			return fmt.Errorf("association must be %q or %q, got %q", AssociationLinear, AssociationGrid, *c.Association)
		}
	}
	if c.GridCellSize != nil && !(*c.GridCellSize > 0) {
		return fmt.Errorf("grid_cell_size must be positive, got %f", *c.GridCellSize)
	}

	if c.WeightMode != nil {
		switch *c.WeightMode {
		case WeightModeProduct, WeightModeLog:
		default:
			return fmt.Errorf("weight_mode must be %q or %q, got %q", WeightModeProduct, WeightModeLog, *c.WeightMode)
		}
	}

	return nil
}

// GetParticleCount returns the particle_count value or the default.
func (c *LocalizerConfig) GetParticleCount() int {
	if c.ParticleCount == nil {
		return 200
	}
	return *c.ParticleCount
}

// GetSeed returns the root random seed or the default.
func (c *LocalizerConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetWorkers returns the number of weighting workers. Zero means one
// worker per available CPU.
func (c *LocalizerConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetInitStdX returns the init_std_x value or the default.
func (c *LocalizerConfig) GetInitStdX() float64 {
	if c.InitStdX == nil {
		return 0.3
	}
	return *c.InitStdX
}

// GetInitStdY returns the init_std_y value or the default.
func (c *LocalizerConfig) GetInitStdY() float64 {
	if c.InitStdY == nil {
		return 0.3
	}
	return *c.InitStdY
}

// GetInitStdTheta returns the init_std_theta value or the default.
func (c *LocalizerConfig) GetInitStdTheta() float64 {
	if c.InitStdTheta == nil {
		return 0.01
	}
	return *c.InitStdTheta
}

// GetProcessStdX returns the process_std_x value or the default.
func (c *LocalizerConfig) GetProcessStdX() float64 {
	if c.ProcessStdX == nil {
		return 0.3
	}
	return *c.ProcessStdX
}

// GetProcessStdY returns the process_std_y value or the default.
func (c *LocalizerConfig) GetProcessStdY() float64 {
	if c.ProcessStdY == nil {
		return 0.3
	}
	return *c.ProcessStdY
}

// GetProcessStdTheta returns the process_std_theta value or the default.
func (c *LocalizerConfig) GetProcessStdTheta() float64 {
	if c.ProcessStdTheta == nil {
		return 0.01
	}
	return *c.ProcessStdTheta
}

// GetYawRateEpsilon returns the yaw rate below which motion is treated as straight.
func (c *LocalizerConfig) GetYawRateEpsilon() float64 {
	if c.YawRateEpsilon == nil {
		return 1e-4
	}
	return *c.YawRateEpsilon
}

// GetLandmarkStdX returns the landmark_std_x value or the default.
func (c *LocalizerConfig) GetLandmarkStdX() float64 {
	if c.LandmarkStdX == nil {
		return 0.3
	}
	return *c.LandmarkStdX
}

// GetLandmarkStdY returns the landmark_std_y value or the default.
func (c *LocalizerConfig) GetLandmarkStdY() float64 {
	if c.LandmarkStdY == nil {
		return 0.3
	}
	return *c.LandmarkStdY
}

// GetSensorRange returns the sensor_range value or the default.
func (c *LocalizerConfig) GetSensorRange() float64 {
	if c.SensorRange == nil {
		return 50
	}
	return *c.SensorRange
}

// GetAssociation returns the association strategy or the default.
func (c *LocalizerConfig) GetAssociation() string {
	if c.Association == nil || *c.Association == "" {
		return AssociationLinear
	}
	return *c.Association
}

// GetGridCellSize returns the grid_cell_size value or the default.
func (c *LocalizerConfig) GetGridCellSize() float64 {
	if c.GridCellSize == nil {
		return 10
	}
	return *c.GridCellSize
}

// GetWeightMode returns the weight_mode value or the default.
func (c *LocalizerConfig) GetWeightMode() string {
	if c.WeightMode == nil || *c.WeightMode == "" {
		return WeightModeProduct
	}
	return *c.WeightMode
}

// GetRejectNonFinite returns the reject_non_finite value or the default.
func (c *LocalizerConfig) GetRejectNonFinite() bool {
	if c.RejectNonFinite == nil {
		return true
	}
	return *c.RejectNonFinite
}

// GetRecordAssociations returns the record_associations value or the default.
func (c *LocalizerConfig) GetRecordAssociations() bool {
	if c.RecordAssociations == nil {
		return true
	}
	return *c.RecordAssociations
}
