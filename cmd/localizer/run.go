package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/localizer/internal/config"
	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
	"github.com/banshee-data/localizer/internal/localization/monitor"
	"github.com/banshee-data/localizer/internal/localization/pf"
	"github.com/banshee-data/localizer/internal/localization/report"
	"github.com/banshee-data/localizer/internal/localization/scenario"
	"github.com/banshee-data/localizer/internal/localization/storage/sqlite"
	"github.com/banshee-data/localizer/internal/version"
)

type options struct {
	configPath string
	mapPath    string

	framesPath string
	serialPort string
	port       scenario.PortOptions
	simSteps   int
	sim        scenario.SimConfig
	simOut     string
	init       *geom.Pose

	dbPath    string
	plotsDir  string
	plotEvery int
	chartPath string
	listen    string
}

// summary is what a finished run reports.
type summary struct {
	RunID      string
	Steps      int
	Skipped    int
	Degenerate int
	Errors     report.Accumulator
}

func (s summary) String() string {
	msg := fmt.Sprintf("processed %d steps (%d skipped, %d degenerate)", s.Steps, s.Skipped, s.Degenerate)
	if s.RunID != "" {
		msg += " run=" + s.RunID
	}
	if s.Errors.Count() > 0 {
		rmse := s.Errors.RMSE()
		msg += fmt.Sprintf(" rmse x=%.3f y=%.3f yaw=%.4f max=%.3f", rmse.X, rmse.Y, rmse.Heading, s.Errors.MaxPosition)
	}
	return msg
}

// run drives the filter over the configured frame source until it is
// exhausted or ctx is cancelled.
func run(ctx context.Context, o options) (summary, error) {
	var sum summary

	tuning, err := config.LoadLocalizerConfig(o.configPath)
	if err != nil {
		return sum, fmt.Errorf("load config: %w", err)
	}
	m, err := loadMap(o.mapPath)
	if err != nil {
		return sum, err
	}

	src, label, closeSrc, err := openSource(ctx, o, m)
	if err != nil {
		return sum, err
	}
	defer closeSrc()

	cfg := pf.ConfigFromTuning(tuning)
	filter, err := pf.New(cfg, m)
	if err != nil {
		return sum, fmt.Errorf("create filter: %w", err)
	}

	var (
		store *sqlite.RunStore
		runID string
		db    *sqlite.DB
	)
	if o.dbPath != "" {
		db, err = sqlite.Open(o.dbPath)
		if err != nil {
			return sum, err
		}
		defer db.Close()

		params, err := json.Marshal(tuning)
		if err != nil {
			return sum, fmt.Errorf("encode tuning: %w", err)
		}
		store = sqlite.NewRunStore(db.DB)
		r := &sqlite.Run{
			MapPath:       o.mapPath,
			Source:        label,
			ParticleCount: cfg.ParticleCount,
			Seed:          cfg.Seed,
			Version:       version.Version,
			ParamsJSON:    params,
		}
		if err := store.InsertRun(r); err != nil {
			return sum, err
		}
		runID = r.RunID
		sum.RunID = runID
	}

	trajectory := monitor.NewTrajectory(fmt.Sprintf("Localization: %s", label), m)

	var plotter *monitor.ParticlePlotter
	if o.plotsDir != "" {
		plotter, err = monitor.NewParticlePlotter(o.plotsDir, m)
		if err != nil {
			return sum, err
		}
		plotter.Every = o.plotEvery
		plotter.Window = 20
	}

	var wg sync.WaitGroup
	if o.listen != "" {
		mux := http.NewServeMux()
		var debug *tsweb.DebugHandler
		if db != nil {
			if debug, err = db.AttachAdminRoutes(mux); err != nil {
				return sum, err
			}
		} else {
			debug = tsweb.Debugger(mux)
		}
		debug.Handle("trajectory", "Estimated vs true trajectory", trajectory)

		srvCtx, cancel := context.WithCancel(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(srvCtx, o.listen, mux)
		}()
		defer func() {
			cancel()
			wg.Wait()
		}()
	}

	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}

		if !filter.Initialized() {
			start, ok := initialPose(frame, o.init)
			if !ok {
				sum.Skipped++
				continue
			}
			if err := filter.Init(start, cfg.InitStd); err != nil {
				return sum, fmt.Errorf("init filter: %w", err)
			}
			log.Printf("initialized %d particles at (%.3f, %.3f, %.3f)", cfg.ParticleCount, start.X, start.Y, start.Theta)
		}

		stats, err := filter.Step(ctx, frame.Control(), frame.Points())
		if errors.Is(err, pf.ErrNonFinite) {
			sum.Skipped++
			continue
		}
		if err != nil {
			return sum, err
		}
		sum.Steps++
		if stats.Degenerate {
			sum.Degenerate++
		}

		var truth *geom.Pose
		if frame.GroundTruth != nil {
			tp := frame.GroundTruth.Geom()
			truth = &tp
			sum.Errors.Add(report.Compare(stats.Estimate, tp))
		}
		trajectory.Add(stats.Step, stats.Estimate, truth)

		if store != nil || plotter != nil {
			best, err := filter.Best()
			if err != nil {
				return sum, err
			}
			if store != nil {
				if err := store.InsertStep(sqlite.NewStep(runID, stats, best, truth)); err != nil {
					return sum, err
				}
			}
			if plotter != nil {
				particles, err := filter.Particles()
				if err != nil {
					return sum, err
				}
				if _, err := plotter.PlotStep(stats.Step, particles, stats.Estimate, truth); err != nil {
					return sum, err
				}
			}
		}
	}

	if store != nil {
		if err := store.FinishRun(runID); err != nil {
			return sum, err
		}
	}
	if o.chartPath != "" {
		if err := writeChart(o.chartPath, trajectory); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// initialPose picks the pose the filter is seeded around: the frame's GPS
// fix, else the -init flag, else the frame's ground truth.
func initialPose(f scenario.Frame, fallback *geom.Pose) (geom.Pose, bool) {
	switch {
	case f.GPS != nil:
		return f.GPS.Geom(), true
	case fallback != nil:
		return *fallback, true
	case f.GroundTruth != nil:
		return f.GroundTruth.Geom(), true
	}
	return geom.Pose{}, false
}

func openSource(ctx context.Context, o options, m *landmarks.Map) (scenario.Source, string, func(), error) {
	switch {
	case o.framesPath != "":
		fs, err := scenario.OpenFile(o.framesPath)
		if err != nil {
			return nil, "", nil, err
		}
		return fs, o.framesPath, func() { fs.Close() }, nil

	case o.serialPort != "":
		ss, err := scenario.OpenSerial(o.serialPort, o.port)
		if err != nil {
			return nil, "", nil, err
		}
		// Closing the port unblocks a pending read on shutdown.
		stop := context.AfterFunc(ctx, func() { ss.Close() })
		return ss, o.serialPort, func() {
			if stop() {
				ss.Close()
			}
		}, nil

	default:
		frames, err := scenario.Simulate(o.sim, m)
		if err != nil {
			return nil, "", nil, fmt.Errorf("simulate: %w", err)
		}
		if o.simOut != "" {
			if err := writeFrames(o.simOut, frames); err != nil {
				return nil, "", nil, err
			}
		}
		return &sliceSource{frames: frames}, "simulated", func() {}, nil
	}
}

// sliceSource replays frames held in memory.
type sliceSource struct {
	frames []scenario.Frame
	next   int
}

func (s *sliceSource) Next(ctx context.Context) (scenario.Frame, error) {
	if err := ctx.Err(); err != nil {
		return scenario.Frame{}, err
	}
	if s.next >= len(s.frames) {
		return scenario.Frame{}, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	return f, nil
}

func writeFrames(path string, frames []scenario.Frame) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create frame file: %w", err)
	}
	if err := scenario.WriteFrames(f, frames); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeChart(path string, t *monitor.Trajectory) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if err := t.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	return f.Close()
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server failed: %v", err)
		}
	}()
	log.Printf("debug pages on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
		server.Close()
	}
}
