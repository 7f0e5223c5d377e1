// Package capture turns a physician's recorded demonstration into a
// repetition definition: it locates the demonstrated rep in the angle
// series, measures how steady the demonstration was, and picks a
// reference pose.
package capture

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrCaptureRetry is matched by every failure that requires the
	// demonstration to be recorded again.
	ErrCaptureRetry = errors.New("capture retry required")
	// ErrInsufficientData means too few usable samples were recorded.
	ErrInsufficientData = fmt.Errorf("%w: insufficient data", ErrCaptureRetry)
	// ErrNoReturn means the angle never came back to its start after the peak.
	ErrNoReturn = fmt.Errorf("%w: no return to start after peak", ErrCaptureRetry)
)

const (
	// DefaultMinSamples is the shortest series Detect accepts.
	DefaultMinSamples = 10
	// DefaultTolerance is the return-to-start band in degrees.
	DefaultTolerance = 5.0
)

// RepWindow locates one repetition in an angle series.
type RepWindow struct {
	Start      int     `json:"start"` // Index of the global minimum
	Peak       int     `json:"peak"`  // Index of the global maximum
	End        int     `json:"end"`   // Settle index after the peak
	StartAngle float64 `json:"startAngle"`
	PeakAngle  float64 `json:"peakAngle"`
	EndAngle   float64 `json:"endAngle"`
}

// Span returns the angular excursion of the repetition.
func (w RepWindow) Span() float64 {
	return w.PeakAngle - w.StartAngle
}

// Detector finds the repetition window in a recorded series.
type Detector struct {
	MinSamples int     // Zero means DefaultMinSamples
	Tolerance  float64 // Degrees; zero means DefaultTolerance
}

func (d Detector) minSamples() int {
	if d.MinSamples > 0 {
		return d.MinSamples
	}
	return DefaultMinSamples
}

func (d Detector) tolerance() float64 {
	if d.Tolerance > 0 {
		return d.Tolerance
	}
	return DefaultTolerance
}

// Detect returns the window of the demonstrated repetition. The start is
// the first global minimum and the peak the first global maximum. The end
// is the first sample after the peak within tolerance of the start angle,
// advanced while the following samples stay in the band and keep getting
// closer to the start angle.
func (d Detector) Detect(series []float64) (RepWindow, error) {
	if len(series) < d.minSamples() {
		return RepWindow{}, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientData, len(series), d.minSamples())
	}

	start, peak := 0, 0
	for i, v := range series {
		if v < series[start] {
			start = i
		}
		if v > series[peak] {
			peak = i
		}
	}
	base := series[start]
	tol := d.tolerance()

	end := -1
	for i := peak + 1; i < len(series); i++ {
		if math.Abs(series[i]-base) < tol {
			end = i
			break
		}
	}
	if end < 0 {
		return RepWindow{}, fmt.Errorf("%w (start=%.1f peak=%.1f)", ErrNoReturn, base, series[peak])
	}
	for end+1 < len(series) {
		next := math.Abs(series[end+1] - base)
		if next >= tol || next >= math.Abs(series[end]-base) {
			break
		}
		end++
	}

	tracef("detect: start=%d peak=%d end=%d of %d", start, peak, end, len(series))
	return RepWindow{
		Start:      start,
		Peak:       peak,
		End:        end,
		StartAngle: base,
		PeakAngle:  series[peak],
		EndAngle:   series[end],
	}, nil
}
