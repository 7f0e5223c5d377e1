package reps

import (
	"time"

	"github.com/banshee-data/rehab.report/internal/exercise"
)

// ThresholdCounter is the down/mid/up fallback. Angles below DownBelow are
// down, above UpAbove are up, anything between is mid. Reaching down arms
// the counter; reaching up while armed counts a rep and disarms it, so a
// limb hovering around UpAbove cannot count twice.
type ThresholdCounter struct {
	DownBelow float64
	UpAbove   float64

	phase Phase
	reps  int
	armed bool
}

// NewThresholdCounter returns a counter in the idle phase.
func NewThresholdCounter(downBelow, upAbove float64) *ThresholdCounter {
	return &ThresholdCounter{DownBelow: downBelow, UpAbove: upAbove, phase: PhaseIdle}
}

func (c *ThresholdCounter) classify(angle float64) Phase {
	switch {
	case angle < c.DownBelow:
		return PhaseDown
	case angle > c.UpAbove:
		return PhaseUp
	}
	return PhaseMid
}

// Update implements Counter.
func (c *ThresholdCounter) Update(angle float64, _ time.Time) Transition {
	tr := Transition{From: c.phase}
	next := c.classify(angle)

	switch next {
	case PhaseDown:
		c.armed = true
	case PhaseUp:
		if c.armed && c.phase != PhaseUp {
			c.reps++
			c.armed = false
			tr.Counted = true
		}
	}

	c.phase = next
	tr.To = next
	return tr
}

// Phase implements Counter.
func (c *ThresholdCounter) Phase() Phase { return c.phase }

// Reps implements Counter.
func (c *ThresholdCounter) Reps() int { return c.reps }

// Active implements Counter.
func (c *ThresholdCounter) Active() bool {
	return c.phase == PhaseMid || c.phase == PhaseUp
}

// Target implements Counter.
func (c *ThresholdCounter) Target() exercise.Range {
	return exercise.Range{c.UpAbove, 180}
}
