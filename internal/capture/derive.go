package capture

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/pose"
	"github.com/banshee-data/rehab.report/internal/units"
)

// DefaultMinFrames is the fewest valid demonstration frames Derive accepts.
const DefaultMinFrames = 15

// Options configures a derivation.
type Options struct {
	// Angles are the measured angles; the first is the primary angle the
	// rep window is detected on.
	Angles []pose.AngleSpec
	// CriticalJoints must be visible in a frame for it to be used.
	CriticalJoints []pose.JointName
	// VisibilityThreshold defaults to the strict capture profile.
	VisibilityThreshold float64
	// MinFrames defaults to DefaultMinFrames.
	MinFrames int
	Detector  Detector
}

// AngleRange is the excursion of one angle between the rep start and peak.
type AngleRange struct {
	Start float64 `json:"start"`
	Peak  float64 `json:"peak"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Derivation is everything learned from one demonstration.
type Derivation struct {
	Window      RepWindow             `json:"window"`
	Frames      int                   `json:"frames"`  // Valid frames used
	Dropped     int                   `json:"dropped"` // Frames failing visibility
	Timestamps  []time.Time           `json:"timestamps"`
	Series      map[string][]float64  `json:"series"`
	AngleRanges map[string]AngleRange `json:"angleRanges"`
	RepDuration float64               `json:"repDuration"` // seconds
	Stability   StabilityReport       `json:"stability"`

	StartFrame     pose.Frame `json:"startFrame"`
	PeakFrame      pose.Frame `json:"peakFrame"`
	EndFrame       pose.Frame `json:"endFrame"`
	ReferenceIndex int        `json:"referenceIndex"`
	Reference      pose.Frame `json:"reference"`

	// Suggested is a hysteresis repetition definition fitted to the window.
	Suggested exercise.RepDefinition `json:"suggested"`
}

func (o Options) required() []pose.JointName {
	seen := make(map[pose.JointName]bool)
	var out []pose.JointName
	for _, j := range o.CriticalJoints {
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}
	for _, spec := range o.Angles {
		for _, j := range spec.Joints() {
			if !seen[j] {
				seen[j] = true
				out = append(out, j)
			}
		}
	}
	return out
}

// Derive analyses a recorded demonstration. Frames failing the capture
// visibility profile are dropped before detection. Failures that need a
// new recording match ErrCaptureRetry.
func Derive(demo []pose.Frame, opts Options) (Derivation, error) {
	if len(opts.Angles) == 0 {
		return Derivation{}, fmt.Errorf("derive: at least one angle is required")
	}
	threshold := opts.VisibilityThreshold
	if threshold <= 0 {
		threshold = pose.ReferenceCapture.Threshold
	}
	minFrames := opts.MinFrames
	if minFrames <= 0 {
		minFrames = DefaultMinFrames
	}

	required := opts.required()
	var frames []pose.Frame
	for _, f := range demo {
		if ok, _ := pose.ValidateVisibility(f, required, threshold); ok {
			frames = append(frames, f)
		}
	}
	dropped := len(demo) - len(frames)
	if len(frames) < minFrames {
		return Derivation{}, fmt.Errorf("%w: %d valid frames of %d, need %d",
			ErrInsufficientData, len(frames), len(demo), minFrames)
	}
	if dropped*2 > len(demo) {
		opsf("derive: %d of %d frames below visibility %.2f, check camera placement", dropped, len(demo), threshold)
	} else if dropped > 0 {
		diagf("derive: dropped %d of %d frames below visibility %.2f", dropped, len(demo), threshold)
	}

	series := make(map[string][]float64, len(opts.Angles))
	samples := make([]map[string]float64, len(frames))
	timestamps := make([]time.Time, len(frames))
	for i, f := range frames {
		timestamps[i] = f.Timestamp
		samples[i] = make(map[string]float64, len(opts.Angles))
		for _, spec := range opts.Angles {
			m := f.Angle(spec)
			// Visibility already guarantees the joints are present.
			series[spec.Name] = append(series[spec.Name], m.Value)
			samples[i][spec.Name] = m.Value
		}
	}

	primary := opts.Angles[0].Name
	window, err := opts.Detector.Detect(series[primary])
	if err != nil {
		return Derivation{}, err
	}

	ranges := make(map[string]AngleRange, len(series))
	for name, values := range series {
		s, p := values[window.Start], values[window.Peak]
		ranges[name] = AngleRange{
			Start: units.Round(s, 2),
			Peak:  units.Round(p, 2),
			Min:   units.Round(math.Min(s, p), 2),
			Max:   units.Round(math.Max(s, p), 2),
		}
	}

	ref, err := SelectReference(samples)
	if err != nil {
		return Derivation{}, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}

	d := Derivation{
		Window:         window,
		Frames:         len(frames),
		Dropped:        dropped,
		Timestamps:     timestamps,
		Series:         series,
		AngleRanges:    ranges,
		RepDuration:    units.Round(math.Abs(timestamps[window.End].Sub(timestamps[window.Start]).Seconds()), 2),
		Stability:      AssessStability(series),
		StartFrame:     frames[window.Start],
		PeakFrame:      frames[window.Peak],
		EndFrame:       frames[window.End],
		ReferenceIndex: ref,
		Reference:      frames[ref],
	}
	d.Suggested = suggest(opts.Angles, window, series[primary], timestamps)

	diagf("derive: window %d/%d/%d span=%.1f° duration=%.2fs jitter=%.2f",
		window.Start, window.Peak, window.End, window.Span(), d.RepDuration, d.Stability.Overall)
	return d, nil
}

// suggest fits hysteresis ranges to the demonstrated excursion: the valid
// range hugs the peak, the exit range sits near the start, and the hold
// time is half the time the demonstration spent inside the valid range.
func suggest(angles []pose.AngleSpec, w RepWindow, primary []float64, ts []time.Time) exercise.RepDefinition {
	span := math.Abs(w.Span())
	valid := exercise.Range{
		units.Round(units.Clamp(w.PeakAngle-0.2*span, 0, 180), 1),
		units.Round(units.Clamp(w.PeakAngle+0.1*span, 0, 180), 1),
	}
	exit := exercise.Range{
		units.Round(units.Clamp(w.StartAngle-0.1*span, 0, 180), 1),
		units.Round(units.Clamp(w.StartAngle+0.4*span, 0, 180), 1),
	}

	lo, hi := w.Start, w.End
	if lo > hi {
		lo, hi = hi, lo
	}
	first, last := -1, -1
	for i := lo; i <= hi; i++ {
		if valid.Contains(primary[i]) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	hold := 0.0
	if first >= 0 {
		hold = ts[last].Sub(ts[first]).Seconds() / 2
	}

	return exercise.RepDefinition{
		Mode:        exercise.ModeHysteresis,
		Angles:      append([]pose.AngleSpec(nil), angles...),
		ValidRange:  valid,
		ExitRange:   exit,
		MinHoldTime: units.Round(units.Clamp(hold, 0.1, 1.0), 2),
	}
}
