package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rehab.report/internal/session"
	"github.com/banshee-data/rehab.report/internal/units"
)

// TimelinePoint is one processed frame as drawn on the timeline.
type TimelinePoint struct {
	Seconds      float64
	Status       session.Status
	TrackedAngle float64
	Reps         int
	Alerts       int
}

// Timeline accumulates per-frame session results for rendering.
type Timeline struct {
	start  time.Time
	points []TimelinePoint
}

// Add records the result of the frame captured at ts.
func (tl *Timeline) Add(ts time.Time, res session.FrameResult) {
	if len(tl.points) == 0 {
		tl.start = ts
	}
	tl.points = append(tl.points, TimelinePoint{
		Seconds:      ts.Sub(tl.start).Seconds(),
		Status:       res.Status,
		TrackedAngle: res.TrackedAngle,
		Reps:         res.RepCount,
		Alerts:       len(res.Alerts),
	})
}

// Points returns the recorded points.
func (tl *Timeline) Points() []TimelinePoint {
	return tl.points
}

// RenderOptions configures the HTML output.
type RenderOptions struct {
	Title string
	// AssetsHost overrides where the echarts scripts are loaded from.
	AssetsHost string
}

// Render writes an HTML page with the angle/rep timeline and, when summary
// is non-nil, a bar chart of error time per rule.
func (tl *Timeline) Render(w io.Writer, summary *session.Summary, ro RenderOptions) error {
	if len(tl.points) == 0 {
		return fmt.Errorf("render timeline: no frames")
	}
	title := ro.Title
	if title == "" {
		title = "Session timeline"
	}

	page := components.NewPage()
	page.PageTitle = title
	if ro.AssetsHost != "" {
		page.SetAssetsHost(ro.AssetsHost)
	}
	page.AddCharts(tl.lineChart(title, summary, ro))
	if summary != nil && len(summary.Errors) > 0 {
		page.AddCharts(errorChart(summary, ro))
	}
	return page.Render(w)
}

func (tl *Timeline) lineChart(title string, summary *session.Summary, ro RenderOptions) *charts.Line {
	x := make([]string, len(tl.points))
	angle := make([]opts.LineData, len(tl.points))
	repCount := make([]opts.LineData, len(tl.points))
	alerts := make([]opts.LineData, len(tl.points))
	for i, pt := range tl.points {
		x[i] = fmt.Sprintf("%.2f", pt.Seconds)
		if pt.Status == session.StatusActive || pt.Status.IsTerminal() {
			angle[i] = opts.LineData{Value: units.Round(pt.TrackedAngle, 1)}
		} else {
			// Gap while tracking is paused.
			angle[i] = opts.LineData{Value: "-"}
		}
		repCount[i] = opts.LineData{Value: pt.Reps}
		alerts[i] = opts.LineData{Value: pt.Alerts}
	}

	subtitle := fmt.Sprintf("frames=%d", len(tl.points))
	if summary != nil {
		subtitle = fmt.Sprintf("%s reps=%d/%d quality=%.2f status=%s",
			subtitle, summary.CompletedReps, summary.TargetReps, summary.QualityScore, summary.Status)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "520px", AssetsHost: ro.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Angle (°)", Min: 0, Max: 180}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "Count", Position: "right"})
	line.SetXAxis(x).
		AddSeries("tracked angle", angle, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("reps", repCount, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1, ShowSymbol: opts.Bool(false)})).
		AddSeries("alerts", alerts, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1, ShowSymbol: opts.Bool(false)}))
	return line
}

func errorChart(summary *session.Summary, ro RenderOptions) *charts.Bar {
	names := make([]string, 0, len(summary.Errors))
	for name := range summary.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	seconds := make([]opts.BarData, len(names))
	counts := make([]opts.BarData, len(names))
	for i, name := range names {
		seconds[i] = opts.BarData{Value: summary.Errors[name].TotalTime}
		counts[i] = opts.BarData{Value: summary.Errors[name].Count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: ro.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Form errors", Subtitle: fmt.Sprintf("total=%.2fs", summary.TotalErrorTime())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("seconds", seconds, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("occurrences", counts)
	return bar
}
