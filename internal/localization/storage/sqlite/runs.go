package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/pf"
	"github.com/banshee-data/localizer/internal/localization/report"
	"github.com/banshee-data/localizer/internal/timeutil"
)

// Run is one execution of the filter over a frame source.
type Run struct {
	RunID         string          `json:"run_id"`
	MapPath       string          `json:"map_path"`
	Source        string          `json:"source"` // frame file, serial port or "simulated"
	ParticleCount int             `json:"particle_count"`
	Seed          uint64          `json:"seed"`
	Version       string          `json:"version"` // build that produced the run
	ParamsJSON    json.RawMessage `json:"params_json,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	FinishedAt    int64           `json:"finished_at,omitempty"`
}

// Step is the persisted record of one filter cycle.
type Step struct {
	RunID               string
	Step                int
	Observations        int
	InRange             int
	WeightSum           float64
	MaxWeight           float64
	EffectiveSampleSize float64
	Degenerate          bool
	Estimate            geom.Pose

	BestID       int
	Best         geom.Pose
	BestWeight   float64
	Associations string // space-joined landmark ids
	SenseX       string
	SenseY       string

	Truth *geom.Pose
}

// NewStep builds the record for one cycle from the filter's statistics and
// its best particle.
func NewStep(runID string, stats pf.StepStats, best pf.Particle, truth *geom.Pose) *Step {
	return &Step{
		RunID:               runID,
		Step:                stats.Step,
		Observations:        stats.Observations,
		InRange:             stats.InRange,
		WeightSum:           stats.WeightSum,
		MaxWeight:           stats.MaxWeight,
		EffectiveSampleSize: stats.EffectiveSampleSize,
		Degenerate:          stats.Degenerate,
		Estimate:            stats.Estimate,
		BestID:              best.ID,
		Best:                best.Pose,
		BestWeight:          best.Weight,
		Associations:        report.Associations(best),
		SenseX:              report.SenseX(best),
		SenseY:              report.SenseY(best),
		Truth:               truth,
	}
}

// RunStore provides persistence for runs and their steps.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a new RunStore on the wall clock.
func NewRunStore(db *sql.DB) *RunStore {
	return NewRunStoreWithClock(db, timeutil.RealClock{})
}

// NewRunStoreWithClock creates a RunStore that timestamps rows and paces
// busy retries with clock.
func NewRunStoreWithClock(db *sql.DB, clock timeutil.Clock) *RunStore {
	return &RunStore{db: db, clock: clock}
}

// InsertRun persists a new run. If RunID is empty, a UUID is generated.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	var params interface{}
	if len(run.ParamsJSON) > 0 {
		params = string(run.ParamsJSON)
	}

	err := s.retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO localizer_runs (
				run_id, map_path, source, particle_count, seed, version, params_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.MapPath, run.Source, run.ParticleCount, int64(run.Seed), run.Version, params, run.CreatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	diagf("started run %s (%s, %d particles)", run.RunID, run.Source, run.ParticleCount)
	return nil
}

// FinishRun stamps the run's completion time.
func (s *RunStore) FinishRun(runID string) error {
	return s.retryOnBusy(func() error {
		result, err := s.db.Exec(`UPDATE localizer_runs SET finished_at = ? WHERE run_id = ?`,
			s.clock.Now().UnixNano(), runID)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

// GetRun returns a run by id, or nil if it does not exist.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, map_path, source, particle_count, seed, version, params_json, created_at, finished_at
		FROM localizer_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, map_path, source, particle_count, seed, version, params_json, created_at, finished_at
		FROM localizer_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and, by cascade, its steps.
func (s *RunStore) DeleteRun(runID string) error {
	return s.retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM localizer_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}

// InsertStep persists one step record.
func (s *RunStore) InsertStep(st *Step) error {
	var tx, ty, tt interface{}
	if st.Truth != nil {
		tx, ty, tt = st.Truth.X, st.Truth.Y, st.Truth.Theta
	}

	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO localizer_steps (
				run_id, step, observations, in_range,
				weight_sum, max_weight, ess, degenerate,
				est_x, est_y, est_theta,
				best_id, best_x, best_y, best_theta, best_weight,
				associations, sense_x, sense_y,
				truth_x, truth_y, truth_theta
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.RunID, st.Step, st.Observations, st.InRange,
			st.WeightSum, st.MaxWeight, st.EffectiveSampleSize, st.Degenerate,
			st.Estimate.X, st.Estimate.Y, st.Estimate.Theta,
			st.BestID, st.Best.X, st.Best.Y, st.Best.Theta, st.BestWeight,
			st.Associations, st.SenseX, st.SenseY,
			tx, ty, tt,
		)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", st.Step, err)
		}
		return nil
	})
}

// ListSteps returns every step of a run in step order.
func (s *RunStore) ListSteps(runID string) ([]*Step, error) {
	rows, err := s.db.Query(`
		SELECT run_id, step, observations, in_range,
		       weight_sum, max_weight, ess, degenerate,
		       est_x, est_y, est_theta,
		       best_id, best_x, best_y, best_theta, best_weight,
		       associations, sense_x, sense_y,
		       truth_x, truth_y, truth_theta
		FROM localizer_steps WHERE run_id = ? ORDER BY step ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []*Step
	for rows.Next() {
		var st Step
		var tx, ty, tt sql.NullFloat64
		if err := rows.Scan(
			&st.RunID, &st.Step, &st.Observations, &st.InRange,
			&st.WeightSum, &st.MaxWeight, &st.EffectiveSampleSize, &st.Degenerate,
			&st.Estimate.X, &st.Estimate.Y, &st.Estimate.Theta,
			&st.BestID, &st.Best.X, &st.Best.Y, &st.Best.Theta, &st.BestWeight,
			&st.Associations, &st.SenseX, &st.SenseY,
			&tx, &ty, &tt,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if tx.Valid && ty.Valid && tt.Valid {
			st.Truth = &geom.Pose{X: tx.Float64, Y: ty.Float64, Theta: tt.Float64}
		}
		steps = append(steps, &st)
	}
	return steps, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var seed int64
	var params sql.NullString
	var finished sql.NullInt64
	if err := row.Scan(&run.RunID, &run.MapPath, &run.Source, &run.ParticleCount, &seed,
		&run.Version, &params, &run.CreatedAt, &finished); err != nil {
		return nil, err
	}
	run.Seed = uint64(seed)
	if params.Valid {
		run.ParamsJSON = json.RawMessage(params.String)
	}
	if finished.Valid {
		run.FinishedAt = finished.Int64
	}
	return &run, nil
}
