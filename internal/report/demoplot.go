package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/rehab.report/internal/capture"
	"github.com/banshee-data/rehab.report/internal/exercise"
)

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// PlotDerivation writes a PNG of every measured angle across the
// demonstration, with the detected start/peak/end marked and the suggested
// valid and exit ranges drawn as horizontal bands.
func PlotDerivation(d capture.Derivation, title, path string) error {
	p, err := derivationPlot(d, title)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("save derivation plot: %w", err)
	}
	return nil
}

func derivationPlot(d capture.Derivation, title string) (*plot.Plot, error) {
	if len(d.Timestamps) == 0 {
		return nil, fmt.Errorf("plot derivation: no frames")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (°)"

	t0 := d.Timestamps[0]
	seconds := make([]float64, len(d.Timestamps))
	for i, ts := range d.Timestamps {
		seconds[i] = ts.Sub(t0).Seconds()
	}

	names := make([]string, 0, len(d.Series))
	for name := range d.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	colors := generateColors(len(names))

	for i, name := range names {
		series := d.Series[name]
		pts := make(plotter.XYs, 0, len(series))
		for j, v := range series {
			if j >= len(seconds) {
				break
			}
			pts = append(pts, plotter.XY{X: seconds[j], Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	if err := addBand(p, "valid", d.Suggested.ValidRange, seconds, color.RGBA{G: 150, A: 255}); err != nil {
		return nil, err
	}
	if err := addBand(p, "exit", d.Suggested.ExitRange, seconds, color.RGBA{R: 200, G: 120, A: 255}); err != nil {
		return nil, err
	}

	w := d.Window
	marks := plotter.XYs{}
	for _, idx := range []struct {
		i int
		v float64
	}{{w.Start, w.StartAngle}, {w.Peak, w.PeakAngle}, {w.End, w.EndAngle}} {
		if idx.i >= 0 && idx.i < len(seconds) {
			marks = append(marks, plotter.XY{X: seconds[idx.i], Y: idx.v})
		}
	}
	if len(marks) > 0 {
		sc, err := plotter.NewScatter(marks)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		sc.GlyphStyle.Color = color.Black
		p.Add(sc)
		p.Legend.Add("start/peak/end", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// addBand draws the low and high edges of r as dashed lines across the
// demonstration.
func addBand(p *plot.Plot, label string, r exercise.Range, seconds []float64, c color.Color) error {
	if r.IsZero() || len(seconds) == 0 {
		return nil
	}
	first, last := seconds[0], seconds[len(seconds)-1]
	for i, v := range []float64{r.Low(), r.High()} {
		line, err := plotter.NewLine(plotter.XYs{{X: first, Y: v}, {X: last, Y: v}})
		if err != nil {
			return err
		}
		line.Color = c
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		if i == 0 {
			p.Legend.Add(label, line)
		}
	}
	return nil
}

// generateColors returns n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
