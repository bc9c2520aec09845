package monitor

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/localizer/internal/localization/geom"
	"github.com/banshee-data/localizer/internal/localization/landmarks"
	"github.com/banshee-data/localizer/internal/localization/report"
)

// Trajectory collects the estimated and true path of a run and renders it
// as an HTML page: an XY chart of the paths over the landmarks and a
// per-step position error chart. It is safe for concurrent use, so the
// driving loop can Add while an HTTP client renders.
type Trajectory struct {
	title string
	m     *landmarks.Map

	mu       sync.Mutex
	steps    []int
	estimate []geom.Pose
	truth    []*geom.Pose
}

// NewTrajectory returns an empty trajectory over m.
func NewTrajectory(title string, m *landmarks.Map) *Trajectory {
	return &Trajectory{title: title, m: m}
}

// Add records one step. truth may be nil.
func (t *Trajectory) Add(step int, estimate geom.Pose, truth *geom.Pose) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
	t.estimate = append(t.estimate, estimate)
	if truth != nil {
		tp := *truth
		truth = &tp
	}
	t.truth = append(t.truth, truth)
}

// Len returns the number of recorded steps.
func (t *Trajectory) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}

// Render writes the HTML page to w.
func (t *Trajectory) Render(w io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	page := components.NewPage().SetPageTitle(t.title)
	page.AddCharts(t.pathChart(), t.errorChart())
	return page.Render(w)
}

func (t *Trajectory) pathChart() *charts.Scatter {
	lms := make([]opts.ScatterData, 0, t.m.Len())
	for _, lm := range t.m.Landmarks() {
		lms = append(lms, opts.ScatterData{Value: []interface{}{lm.X, lm.Y}, Name: fmt.Sprintf("landmark %d", lm.ID)})
	}
	est := make([]opts.ScatterData, len(t.estimate))
	for i, p := range t.estimate {
		est[i] = opts.ScatterData{Value: []interface{}{p.X, p.Y}, Name: fmt.Sprintf("step %d", t.steps[i])}
	}
	var truth []opts.ScatterData
	for i, p := range t.truth {
		if p != nil {
			truth = append(truth, opts.ScatterData{Value: []interface{}{p.X, p.Y}, Name: fmt.Sprintf("step %d", t.steps[i])})
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: t.title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: t.title, Subtitle: fmt.Sprintf("steps=%d landmarks=%d", len(t.steps), t.m.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("landmarks", lms, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	scatter.AddSeries("estimate", est, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	if len(truth) > 0 {
		scatter.AddSeries("truth", truth, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	return scatter
}

func (t *Trajectory) errorChart() *charts.Line {
	x := make([]int, 0, len(t.steps))
	errs := make([]opts.LineData, 0, len(t.steps))
	var acc report.Accumulator
	for i, truth := range t.truth {
		if truth == nil {
			continue
		}
		e := report.Compare(t.estimate[i], *truth)
		acc.Add(e)
		x = append(x, t.steps[i])
		errs = append(errs, opts.LineData{Value: e.Position()})
	}

	rmse := acc.RMSE()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Position error",
			Subtitle: fmt.Sprintf("rmse x=%.3f y=%.3f yaw=%.4f max=%.3f", rmse.X, rmse.Y, rmse.Heading, acc.MaxPosition),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error (m)"}),
	)
	line.SetXAxis(x).AddSeries("error", errs)
	return line
}

// ServeHTTP renders the current trajectory.
func (t *Trajectory) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := t.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render trajectory: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
