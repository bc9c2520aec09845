// Command localizer runs the particle filter over a landmark map, driven by
// frames from a JSON-lines file, a serial port or the built-in simulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/localizer/internal/config"
	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
	"github.com/banshee-data/localizer/internal/localization/pf"
	"github.com/banshee-data/localizer/internal/localization/scenario"
	"github.com/banshee-data/localizer/internal/localization/storage/sqlite"
	"github.com/banshee-data/localizer/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the tuning config JSON")
	mapPath    = flag.String("map", "data/map_data.txt", "Landmark map file (x y id per line)")

	framesPath = flag.String("frames", "", "JSON-lines frame file to replay")
	serialPort = flag.String("serial", "", "Serial port streaming JSON-line frames")
	baudRate   = flag.Int("baud", scenario.DefaultBaudRate, "Serial baud rate")
	parity     = flag.String("parity", "N", "Serial parity: N, E or O")
	simulate   = flag.Int("simulate", 0, "Simulate this many steps over the map instead of reading frames")
	simVel     = flag.Float64("sim-velocity", 5, "Simulated velocity (m/s)")
	simYawRate = flag.Float64("sim-yaw-rate", 0.2, "Simulated yaw rate (rad/s)")
	simSeed    = flag.Uint64("sim-seed", 1, "Simulator noise seed")
	simOut     = flag.String("sim-out", "", "Also write simulated frames to this JSON-lines file")
	initPose   = flag.String("init", "", "Initial pose x,y,theta when frames carry no GPS fix")

	dbPath    = flag.String("db", "", "SQLite run database (empty disables persistence)")
	plotsDir  = flag.String("plots", "", "Directory for per-step particle PNGs (empty disables)")
	plotEvery = flag.Int("plot-every", 10, "Plot every Nth step")
	chartPath = flag.String("chart", "", "Write the trajectory HTML chart to this file")
	listen    = flag.String("debug-listen", "", "Listen address for the debug admin pages (empty disables)")

	logOps   = flag.String("log-ops", "stderr", "Ops log stream: stderr, stdout or none")
	logDiag  = flag.String("log-diag", "none", "Diag log stream: stderr, stdout or none")
	logTrace = flag.String("log-trace", "none", "Trace log stream: stderr, stdout or none")

	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Print(version.String())

	opts, err := optionsFromFlags()
	if err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	ops, err := logWriter(*logOps)
	if err != nil {
		log.Fatalf("invalid -log-ops: %v", err)
	}
	diag, err := logWriter(*logDiag)
	if err != nil {
		log.Fatalf("invalid -log-diag: %v", err)
	}
	trace, err := logWriter(*logTrace)
	if err != nil {
		log.Fatalf("invalid -log-trace: %v", err)
	}
	pf.SetLogWriters(ops, diag, trace)
	scenario.SetLogWriters(ops, diag, trace)
	sqlite.SetLogWriters(ops, diag, trace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := run(ctx, opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("localizer failed: %v", err)
	}
	log.Print(summary)
}

func optionsFromFlags() (options, error) {
	o := options{
		configPath: *configPath,
		mapPath:    *mapPath,
		framesPath: *framesPath,
		serialPort: *serialPort,
		port:       scenario.PortOptions{BaudRate: *baudRate, Parity: *parity},
		simSteps:   *simulate,
		simOut:     *simOut,
		dbPath:     *dbPath,
		plotsDir:   *plotsDir,
		plotEvery:  *plotEvery,
		chartPath:  *chartPath,
		listen:     *listen,
	}

	sources := 0
	for _, set := range []bool{o.framesPath != "", o.serialPort != "", o.simSteps > 0} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return o, errors.New("exactly one of -frames, -serial or -simulate is required")
	}

	if o.simSteps > 0 {
		o.sim = scenario.DefaultSimConfig()
		o.sim.Steps = o.simSteps
		o.sim.Velocity = *simVel
		o.sim.YawRate = *simYawRate
		o.sim.Seed = *simSeed
	}

	if *initPose != "" {
		p, err := parsePose(*initPose)
		if err != nil {
			return o, fmt.Errorf("-init: %w", err)
		}
		o.init = &p
	}
	return o, nil
}

// parsePose parses "x,y,theta".
func parsePose(s string) (geom.Pose, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return geom.Pose{}, fmt.Errorf("want x,y,theta, got %q", s)
	}
	var v [3]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geom.Pose{}, fmt.Errorf("component %d: %w", i, err)
		}
		v[i] = f
	}
	return geom.Pose{X: v[0], Y: v[1], Theta: v[2]}, nil
}

func logWriter(name string) (io.Writer, error) {
	switch name {
	case "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown stream %q (want stderr, stdout or none)", name)
	}
}

// loadMap loads the landmark map and logs its size.
func loadMap(path string) (*landmarks.Map, error) {
	m, err := landmarks.LoadFile(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d landmarks from %s", m.Len(), path)
	return m, nil
}
