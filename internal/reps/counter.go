// Package reps counts exercise repetitions from a smoothed joint angle.
//
// The canonical algorithm is the hysteresis counter: an angle must enter
// the valid range, stay there for the minimum hold time to count, and then
// cross into the exit range before the next repetition can begin. The
// threshold counter is the degraded fallback for definitions without an
// authored valid/exit range.
package reps

import (
	"time"

	"github.com/banshee-data/rehab.report/internal/exercise"
)

// Phase is the rep-cycle state of a counter.
type Phase string

const (
	// Hysteresis phases
	PhaseOutside Phase = "OUTSIDE" // At rest or between ranges
	PhaseEntered Phase = "ENTERED" // Inside the valid range, hold pending
	PhaseCounted Phase = "COUNTED" // Rep counted, waiting for the exit range

	// Threshold fallback phases
	PhaseIdle Phase = "idle" // No angle seen yet
	PhaseDown Phase = "down"
	PhaseMid  Phase = "mid"
	PhaseUp   Phase = "up"
)

// Transition describes the result of one counter update.
type Transition struct {
	From    Phase
	To      Phase
	Counted bool // A repetition was counted on this update
}

// Changed reports whether the phase moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Counter is a repetition state machine fed one smoothed angle per frame.
// Implementations are not safe for concurrent use.
type Counter interface {
	// Update advances the machine with the tracked angle observed at now.
	Update(angle float64, now time.Time) Transition

	// Phase returns the current phase.
	Phase() Phase

	// Reps returns the number of counted repetitions. Never decreases.
	Reps() int

	// Active reports whether the limb is in a working phase. Alignment
	// rules are only evaluated while active.
	Active() bool

	// Target returns the angle range a well-formed repetition reaches.
	Target() exercise.Range
}

// New returns the counter for rep. Hysteresis definitions get the
// canonical counter; everything else gets a ThresholdCounter whose unset
// thresholds fall back to downBelow and upAbove.
func New(rep exercise.RepDefinition, downBelow, upAbove float64) Counter {
	if rep.EffectiveMode() == exercise.ModeHysteresis {
		return NewHysteresisCounter(rep.ValidRange, rep.ExitRange, rep.MinHoldTime)
	}
	if rep.DownBelow != 0 || rep.UpAbove != 0 {
		downBelow, upAbove = rep.DownBelow, rep.UpAbove
	}
	return NewThresholdCounter(downBelow, upAbove)
}

// Accuracy scores how close angle is to the target range: 100 inside it,
// otherwise 100 minus the distance in degrees, floored at 0.
func Accuracy(angle float64, target exercise.Range) float64 {
	score := 100 - target.Distance(angle)
	if score < 0 {
		return 0
	}
	return score
}
