package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
	"github.com/banshee-data/localizer/internal/localization/pf"
)

var (
	particleColor = color.RGBA{R: 31, G: 119, B: 180, A: 160}
	landmarkColor = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	estimateColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	truthColor    = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// ParticlePlotter writes one PNG per step showing the particle cloud over
// the landmark map.
type ParticlePlotter struct {
	outputDir string
	m         *landmarks.Map

	// Every plots only steps divisible by it; 0 or 1 plots all.
	Every int
	// Window is the half-width in metres of the view around the estimate;
	// 0 shows the whole map.
	Window float64
}

// NewParticlePlotter creates outputDir if needed.
func NewParticlePlotter(outputDir string, m *landmarks.Map) (*ParticlePlotter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &ParticlePlotter{outputDir: outputDir, m: m}, nil
}

// PlotStep renders particles, landmarks, the estimate and, if known, the
// true pose for one step. It returns the written path, or "" when the step
// is skipped by Every.
func (pp *ParticlePlotter) PlotStep(step int, particles []pf.Particle, estimate geom.Pose, truth *geom.Pose) (string, error) {
	if pp.Every > 1 && step%pp.Every != 0 {
		return "", nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Step %d (%d particles)", step, len(particles))
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	lmPts := make(plotter.XYs, 0, pp.m.Len())
	for _, lm := range pp.m.Landmarks() {
		lmPts = append(lmPts, plotter.XY{X: lm.X, Y: lm.Y})
	}
	if err := addScatter(p, "landmarks", lmPts, landmarkColor, draw.BoxGlyph{}, 3); err != nil {
		return "", err
	}

	ptPts := make(plotter.XYs, len(particles))
	for i, pt := range particles {
		ptPts[i] = plotter.XY{X: pt.Pose.X, Y: pt.Pose.Y}
	}
	if len(ptPts) > 0 {
		if err := addScatter(p, "particles", ptPts, particleColor, draw.CircleGlyph{}, 1.5); err != nil {
			return "", err
		}
	}

	if truth != nil {
		if err := addScatter(p, "truth", plotter.XYs{{X: truth.X, Y: truth.Y}}, truthColor, draw.PyramidGlyph{}, 5); err != nil {
			return "", err
		}
	}
	if err := addScatter(p, "estimate", plotter.XYs{{X: estimate.X, Y: estimate.Y}}, estimateColor, draw.CrossGlyph{}, 5); err != nil {
		return "", err
	}

	if pp.Window > 0 {
		p.X.Min, p.X.Max = estimate.X-pp.Window, estimate.X+pp.Window
		p.Y.Min, p.Y.Max = estimate.Y-pp.Window, estimate.Y+pp.Window
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	path := filepath.Join(pp.outputDir, fmt.Sprintf("step_%05d.png", step))
	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return path, nil
}

func addScatter(p *plot.Plot, label string, pts plotter.XYs, c color.Color, shape draw.GlyphDrawer, radius float64) error {
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build %s scatter: %w", label, err)
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Radius = vg.Points(radius)
	p.Add(s)
	p.Legend.Add(label, s)
	return nil
}
