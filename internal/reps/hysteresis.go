package reps

import (
	"time"

	"github.com/banshee-data/rehab.report/internal/exercise"
)

// HysteresisCounter implements the OUTSIDE/ENTERED/COUNTED machine.
//
//	OUTSIDE --in valid--> ENTERED --in valid, held--> COUNTED --in exit--> OUTSIDE
//	ENTERED --left valid--> OUTSIDE
type HysteresisCounter struct {
	ValidRange  exercise.Range
	ExitRange   exercise.Range
	MinHoldTime time.Duration

	phase     Phase
	reps      int
	enteredAt time.Time
}

// NewHysteresisCounter returns a counter in the OUTSIDE phase.
// minHoldSeconds is the hold requirement in seconds.
func NewHysteresisCounter(valid, exit exercise.Range, minHoldSeconds float64) *HysteresisCounter {
	return &HysteresisCounter{
		ValidRange:  valid,
		ExitRange:   exit,
		MinHoldTime: time.Duration(minHoldSeconds * float64(time.Second)),
		phase:       PhaseOutside,
	}
}

// Update implements Counter.
func (c *HysteresisCounter) Update(angle float64, now time.Time) Transition {
	tr := Transition{From: c.phase}

	switch c.phase {
	case PhaseOutside:
		if c.ValidRange.Contains(angle) {
			c.enteredAt = now
			c.phase = PhaseEntered
		}
	case PhaseEntered:
		switch {
		case !c.ValidRange.Contains(angle):
			c.enteredAt = time.Time{}
			c.phase = PhaseOutside
		case now.Sub(c.enteredAt) >= c.MinHoldTime:
			c.reps++
			c.phase = PhaseCounted
			tr.Counted = true
		}
	case PhaseCounted:
		if c.ExitRange.Contains(angle) {
			c.enteredAt = time.Time{}
			c.phase = PhaseOutside
		}
	}

	tr.To = c.phase
	return tr
}

// Phase implements Counter.
func (c *HysteresisCounter) Phase() Phase { return c.phase }

// Reps implements Counter.
func (c *HysteresisCounter) Reps() int { return c.reps }

// Active implements Counter.
func (c *HysteresisCounter) Active() bool {
	return c.phase == PhaseEntered || c.phase == PhaseCounted
}

// Target implements Counter.
func (c *HysteresisCounter) Target() exercise.Range { return c.ValidRange }

// EnteredAt returns when the current hold started, zero outside ENTERED
// and COUNTED.
func (c *HysteresisCounter) EnteredAt() time.Time { return c.enteredAt }
