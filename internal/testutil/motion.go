package testutil

import (
	"time"

	"github.com/banshee-data/rehab.report/internal/pose"
)

// Cycle is a trapezoidal repetition profile: rest at Low, rise to High,
// hold, lower back to Low.
type Cycle struct {
	Low, High               float64
	Rest, Rise, Hold, Lower time.Duration
}

// DefaultCycle is a comfortable shoulder abduction repetition.
var DefaultCycle = Cycle{
	Low:   10,
	High:  90,
	Rest:  500 * time.Millisecond,
	Rise:  400 * time.Millisecond,
	Hold:  600 * time.Millisecond,
	Lower: 400 * time.Millisecond,
}

// Period returns the length of one repetition.
func (c Cycle) Period() time.Duration {
	return c.Rest + c.Rise + c.Hold + c.Lower
}

// AngleAt returns the profile angle at offset into a repetition.
func (c Cycle) AngleAt(offset time.Duration) float64 {
	if p := c.Period(); p > 0 {
		offset %= p
	}
	lerp := func(from, to float64, at, span time.Duration) float64 {
		if span <= 0 {
			return to
		}
		return from + (to-from)*float64(at)/float64(span)
	}
	switch {
	case offset < c.Rest:
		return c.Low
	case offset < c.Rest+c.Rise:
		return lerp(c.Low, c.High, offset-c.Rest, c.Rise)
	case offset < c.Rest+c.Rise+c.Hold:
		return c.High
	}
	return lerp(c.High, c.Low, offset-c.Rest-c.Rise-c.Hold, c.Lower)
}

// Poser builds the frame for one profile angle.
type Poser func(ts time.Time, deg float64) pose.Frame

// ArmsPoser raises both arms to the profile angle.
func ArmsPoser(ts time.Time, deg float64) pose.Frame {
	return Standing(ts).Arms(deg).Build()
}

// CycleFrames samples reps repetitions of c at fps, followed by one rest
// period so the last repetition settles.
func CycleFrames(start time.Time, c Cycle, reps int, fps float64, poser Poser) []pose.Frame {
	if poser == nil {
		poser = ArmsPoser
	}
	step := time.Duration(float64(time.Second) / fps)
	total := time.Duration(reps)*c.Period() + c.Rest
	frames := make([]pose.Frame, 0, int(total/step)+1)
	for i := 0; ; i++ {
		offset := time.Duration(i) * step
		if offset > total {
			break
		}
		deg := c.Low
		if offset < time.Duration(reps)*c.Period() {
			deg = c.AngleAt(offset)
		}
		frames = append(frames, poser(start.Add(offset), deg))
	}
	return frames
}
