package reps

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rehab.report/internal/exercise"
)

const frameStep = 50 * time.Millisecond

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// feed runs angles through c at a fixed frame rate, starting at frame
// index start, and returns the transitions.
func feed(c Counter, start int, angles ...float64) []Transition {
	out := make([]Transition, 0, len(angles))
	for i, a := range angles {
		now := epoch.Add(time.Duration(start+i) * frameStep)
		out = append(out, c.Update(a, now))
	}
	return out
}

// liftCycle is one 0→100→0 repetition with the plateau held for hold frames.
func liftCycle(hold int) []float64 {
	series := []float64{0, 20, 40, 60, 80}
	for i := 0; i < hold; i++ {
		series = append(series, 100)
	}
	return append(series, 80, 60, 40, 20, 0)
}

func newTestHysteresis() *HysteresisCounter {
	return NewHysteresisCounter(exercise.Range{80, 120}, exercise.Range{0, 60}, 0.25)
}

// ---- Hysteresis ----

func TestHysteresis_SingleRep(t *testing.T) {
	t.Parallel()
	c := newTestHysteresis()
	assert.Equal(t, PhaseOutside, c.Phase())

	transitions := feed(c, 0, liftCycle(6)...)
	assert.Equal(t, 1, c.Reps())
	assert.Equal(t, PhaseOutside, c.Phase())

	counted := 0
	for _, tr := range transitions {
		if tr.Counted {
			counted++
			assert.Equal(t, PhaseEntered, tr.From)
			assert.Equal(t, PhaseCounted, tr.To)
		}
	}
	assert.Equal(t, 1, counted)
}

func TestHysteresis_RepeatedCycles(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 3, 7} {
		n := n
		t.Run(fmt.Sprintf("%d_cycles", n), func(t *testing.T) {
			t.Parallel()
			c := newTestHysteresis()
			var series []float64
			for i := 0; i < n; i++ {
				series = append(series, liftCycle(8)...)
			}
			feed(c, 0, series...)
			assert.Equal(t, n, c.Reps())
		})
	}
}

func TestHysteresis_ShortHoldRejected(t *testing.T) {
	t.Parallel()
	c := newTestHysteresis()
	feed(c, 0, 0, 20, 40, 60, 80, 100, 100, 80, 60, 40, 20, 0)
	assert.Equal(t, 0, c.Reps())
	assert.Equal(t, PhaseOutside, c.Phase())
}

func TestHysteresis_HoldBoundary(t *testing.T) {
	t.Parallel()
	c := newTestHysteresis()
	// Entered at frame 0; frame 5 is exactly the hold time later.
	tr := feed(c, 0, 90, 90, 90, 90, 90)
	assert.False(t, tr[len(tr)-1].Counted)
	assert.Equal(t, PhaseEntered, c.Phase())

	next := c.Update(90, epoch.Add(5*frameStep))
	assert.True(t, next.Counted)
	assert.Equal(t, 1, c.Reps())
}

func TestHysteresis_NoRecountWithoutExit(t *testing.T) {
	t.Parallel()
	c := newTestHysteresis()
	// Count once, then dither between the valid range and the gap above
	// the exit range without ever resting.
	feed(c, 0, liftCycle(6)[:11]...)
	require.Equal(t, 1, c.Reps())
	feed(c, 11, 75, 100, 100, 100, 100, 100, 100, 100, 70, 100, 100, 100, 100, 100, 100)
	assert.Equal(t, 1, c.Reps())
	assert.Equal(t, PhaseCounted, c.Phase())
}

func TestHysteresis_LeavingValidRangeClearsEntry(t *testing.T) {
	t.Parallel()
	c := newTestHysteresis()
	feed(c, 0, 90)
	assert.Equal(t, epoch, c.EnteredAt())
	feed(c, 1, 130)
	assert.Equal(t, PhaseOutside, c.Phase())
	assert.True(t, c.EnteredAt().IsZero())
}

func TestHysteresis_Active(t *testing.T) {
	t.Parallel()
	c := newTestHysteresis()
	assert.False(t, c.Active())
	feed(c, 0, 90)
	assert.True(t, c.Active())
}

// ---- Threshold fallback ----

func TestThreshold_CountsArmedUp(t *testing.T) {
	t.Parallel()
	c := NewThresholdCounter(40, 100)
	assert.Equal(t, PhaseIdle, c.Phase())

	tr := feed(c, 0, 30, 70, 120)
	assert.Equal(t, PhaseDown, tr[0].To)
	assert.Equal(t, PhaseMid, tr[1].To)
	assert.True(t, tr[2].Counted)
	assert.Equal(t, 1, c.Reps())

	// Hovering around the up threshold does not count again.
	feed(c, 3, 95, 120, 90, 125)
	assert.Equal(t, 1, c.Reps())

	// A full return to down re-arms.
	feed(c, 7, 60, 20, 60, 110)
	assert.Equal(t, 2, c.Reps())
}

func TestThreshold_StartingUpDoesNotCount(t *testing.T) {
	t.Parallel()
	c := NewThresholdCounter(40, 100)
	feed(c, 0, 150, 150, 70)
	assert.Equal(t, 0, c.Reps())
	assert.True(t, c.Active())
}

// ---- Factory / accuracy ----

func TestNew(t *testing.T) {
	t.Parallel()

	h := New(exercise.Generic("raise").Rep, 40, 100)
	require.IsType(t, &HysteresisCounter{}, h)
	assert.Equal(t, exercise.Range{40, 140}, h.Target())

	th := New(exercise.RepDefinition{Mode: exercise.ModeThreshold}, 40, 100)
	require.IsType(t, &ThresholdCounter{}, th)
	assert.Equal(t, 40.0, th.(*ThresholdCounter).DownBelow)

	custom := New(exercise.RepDefinition{DownBelow: 90, UpAbove: 160}, 40, 100)
	assert.Equal(t, exercise.Range{160, 180}, custom.Target())
}

func TestAccuracy(t *testing.T) {
	t.Parallel()
	target := exercise.Range{80, 120}
	assert.Equal(t, 100.0, Accuracy(100, target))
	assert.InDelta(t, 90.0, Accuracy(70, target), 1e-9)
	assert.InDelta(t, 85.0, Accuracy(135, target), 1e-9)
	assert.Equal(t, 0.0, Accuracy(300, target))
}

func TestTransitionChanged(t *testing.T) {
	t.Parallel()
	assert.True(t, Transition{From: PhaseOutside, To: PhaseEntered}.Changed())
	assert.False(t, Transition{From: PhaseMid, To: PhaseMid}.Changed())
}
