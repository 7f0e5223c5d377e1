package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rehab.report/internal/alignment"
	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/pose"
	"github.com/banshee-data/rehab.report/internal/reps"
	"github.com/banshee-data/rehab.report/internal/testutil"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const step = 50 * time.Millisecond

// cycle is one arm raise: rest, raise, eight plateau frames (0.4 s), return.
var cycle = []float64{10, 30, 50, 70, 100, 100, 100, 100, 100, 100, 100, 100, 70, 50, 30, 10}

func raiseDefinition() *exercise.Definition {
	return &exercise.Definition{
		ID:             "arm_raise",
		Name:           "Arm Raise",
		CriticalJoints: []pose.JointName{pose.LeftShoulder, pose.LeftElbow, pose.LeftHip},
		Rep: exercise.RepDefinition{
			Mode: exercise.ModeHysteresis,
			Angles: []pose.AngleSpec{
				{Name: "left_shoulder", A: pose.LeftElbow, B: pose.LeftShoulder, C: pose.LeftHip},
			},
			ValidRange:     exercise.Range{80, 120},
			ExitRange:      exercise.Range{0, 60},
			MinHoldTime:    0.25,
			SmoothingAlpha: 1,
		},
	}
}

var shoulderLevel = exercise.AlignmentRule{
	Name:                "shoulderLevel",
	Kind:                exercise.RuleLevel,
	Joints:              []pose.JointName{pose.LeftShoulder, pose.RightShoulder},
	MaxHeightDifference: 0.05,
	Message:             "Keep your shoulders level",
}

// feeder drives a session at a fixed frame rate.
type feeder struct {
	t   *testing.T
	s   *Session
	now time.Time
}

func newFeeder(t *testing.T, s *Session) *feeder {
	return &feeder{t: t, s: s, now: s.StartedAt}
}

func (f *feeder) next(build func(ts time.Time) pose.Frame) FrameResult {
	f.t.Helper()
	f.now = f.now.Add(step)
	res, err := f.s.ProcessFrame(build(f.now), f.now)
	require.NoError(f.t, err)
	return res
}

func (f *feeder) arms(angles ...float64) []FrameResult {
	f.t.Helper()
	out := make([]FrameResult, 0, len(angles))
	for _, a := range angles {
		a := a
		out = append(out, f.next(func(ts time.Time) pose.Frame {
			return testutil.Standing(ts).Arms(a).Build()
		}))
	}
	return out
}

func mustStart(t *testing.T, def *exercise.Definition, target int, max time.Duration, opts ...Option) *Session {
	t.Helper()
	s, err := Start(def, target, max, t0, opts...)
	require.NoError(t, err)
	return s
}

// ---- Start ----

func TestStart_Validation(t *testing.T) {
	t.Parallel()

	_, err := Start(nil, 3, time.Minute, t0)
	assert.True(t, errors.Is(err, exercise.ErrInvalidDefinition))

	_, err = Start(raiseDefinition(), 0, time.Minute, t0)
	assert.True(t, errors.Is(err, ErrInvalidTarget))

	bad := raiseDefinition()
	bad.Rep.ValidRange = exercise.Range{120, 80}
	_, err = Start(bad, 3, time.Minute, t0)
	assert.True(t, errors.Is(err, exercise.ErrInvalidDefinition))

	s := mustStart(t, raiseDefinition(), 3, time.Minute)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StatusActive, s.Status())
	assert.Equal(t, reps.PhaseOutside, s.Phase())
	assert.Equal(t, t0, s.LastFrameAt())

	named := mustStart(t, raiseDefinition(), 3, time.Minute, WithID("fixed"))
	assert.Equal(t, "fixed", named.ID)
}

func TestRequiredJoints(t *testing.T) {
	t.Parallel()
	def := raiseDefinition()
	def.CriticalJoints = []pose.JointName{pose.LeftHip, pose.RightShoulder}
	got := requiredJoints(def)
	want := []pose.JointName{pose.LeftHip, pose.RightShoulder, pose.LeftElbow, pose.LeftShoulder}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("requiredJoints mismatch (-want +got):\n%s", diff)
	}
}

// ---- Repetitions and completion ----

func TestProcessFrame_CountsToCompletion(t *testing.T) {
	t.Parallel()
	s := mustStart(t, raiseDefinition(), 3, time.Minute)
	f := newFeeder(t, s)

	var counted int
	for i := 0; i < 3 && !s.Status().IsTerminal(); i++ {
		for _, a := range cycle {
			if s.Status().IsTerminal() {
				break
			}
			if f.arms(a)[0].Counted {
				counted++
			}
		}
	}

	assert.Equal(t, 3, counted)
	assert.Equal(t, 3, s.Reps())
	assert.Equal(t, StatusCompleted, s.Status())

	_, err := s.ProcessFrame(testutil.Standing(f.now).Build(), f.now.Add(step))
	assert.True(t, errors.Is(err, ErrSessionClosed))

	sum, ok := s.Summary()
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, sum.Status)
	assert.Equal(t, 3, sum.CompletedReps)
	assert.Equal(t, 1.0, sum.QualityScore)
	assert.Equal(t, StabilityGood, sum.Tracking.Stability)
	assert.Empty(t, sum.Errors)

	js := sum.Joints["left_shoulder"]
	assert.InDelta(t, 10, js.Min, 1e-9)
	assert.InDelta(t, 100, js.Max, 1e-9)
}

func TestProcessFrame_ReportsAnglesAndAccuracy(t *testing.T) {
	t.Parallel()
	s := mustStart(t, raiseDefinition(), 3, time.Minute)
	f := newFeeder(t, s)

	res := f.arms(70)[0]
	assert.Equal(t, StatusActive, res.Status)
	assert.InDelta(t, 70, res.Angles["left_shoulder"], 1e-9)
	assert.InDelta(t, 70, res.TrackedAngle, 1e-9)
	assert.InDelta(t, 90, res.Accuracy, 1e-6)
	assert.InDelta(t, 0.05, res.DeltaSeconds, 1e-9)

	res = f.arms(100)[0]
	assert.Equal(t, reps.PhaseEntered, res.Phase)
	assert.Equal(t, 100.0, res.Accuracy)
	assert.InDelta(t, 100, s.SmoothedAngles()["left_shoulder"], 1e-9)
}

func TestProcessFrame_BilateralAverage(t *testing.T) {
	t.Parallel()
	def := raiseDefinition()
	def.Rep.Angles = append(def.Rep.Angles, pose.AngleSpec{
		Name: "right_shoulder", A: pose.RightElbow, B: pose.RightShoulder, C: pose.RightHip,
	})
	s := mustStart(t, def, 3, time.Minute)
	f := newFeeder(t, s)

	res := f.next(func(ts time.Time) pose.Frame {
		return testutil.Standing(ts).ArmAngle(testutil.Left, 100).ArmAngle(testutil.Right, 80).Build()
	})
	assert.InDelta(t, 90, res.TrackedAngle, 1e-9)
	assert.Len(t, res.Angles, 2)
	assert.Len(t, s.JointStats(), 2)
}

func TestProcessFrame_ThresholdFallback(t *testing.T) {
	t.Parallel()
	def := raiseDefinition()
	def.Rep = exercise.RepDefinition{
		Mode:           exercise.ModeThreshold,
		Angles:         def.Rep.Angles,
		SmoothingAlpha: 1,
	}
	s := mustStart(t, def, 2, time.Minute)
	f := newFeeder(t, s)

	// Defaults split at 40 and 100.
	f.arms(20, 70, 130, 130, 70, 20, 70, 130)
	assert.Equal(t, 2, s.Reps())
	assert.Equal(t, StatusCompleted, s.Status())
}

// ---- Tracking loss ----

func TestProcessFrame_TrackingLossPauses(t *testing.T) {
	t.Parallel()
	s := mustStart(t, raiseDefinition(), 3, time.Minute)
	f := newFeeder(t, s)

	f.arms(100)
	require.Equal(t, reps.PhaseEntered, s.Phase())

	for i := 0; i < 10; i++ {
		res := f.next(testutil.Empty)
		assert.Equal(t, StatusPaused, res.Status)
		assert.Equal(t, reps.PhaseEntered, res.Phase)
	}
	assert.InDelta(t, 0.5, s.LostTime(), 1e-9)
	assert.Equal(t, 0.0, s.UnstableTime())

	for i := 0; i < 10; i++ {
		res := f.next(func(ts time.Time) pose.Frame {
			return testutil.Standing(ts).Arms(100).Visibility(0.1, pose.LeftElbow).Build()
		})
		assert.Equal(t, StatusPaused, res.Status)
		assert.Equal(t, []pose.JointName{pose.LeftElbow}, res.MissingJoints)
	}
	assert.InDelta(t, 1.0, s.LostTime(), 1e-9)
	assert.InDelta(t, 0.5, s.UnstableTime(), 1e-9)
	assert.Equal(t, 0, s.Reps())

	res := f.arms(100)[0]
	assert.Equal(t, StatusActive, res.Status)
	// The hold started before the gap, so the resumed frame counts.
	assert.True(t, res.Counted)
}

func TestSummary_StabilityFromLostTime(t *testing.T) {
	t.Parallel()
	s := mustStart(t, raiseDefinition(), 3, time.Minute)

	_, err := s.ProcessFrame(testutil.Empty(t0.Add(3*time.Second)), t0.Add(3*time.Second))
	require.NoError(t, err)
	sum := s.End(t0.Add(4 * time.Second))
	assert.Equal(t, StabilityModerate, sum.Tracking.Stability)
	assert.Equal(t, 3.0, sum.Tracking.LostTime)
	assert.Equal(t, 1, sum.Frames)
}

// ---- Timeout and End ----

func TestProcessFrame_Timeout(t *testing.T) {
	t.Parallel()
	s := mustStart(t, raiseDefinition(), 3, time.Second)

	res, err := s.ProcessFrame(testutil.Standing(t0).Build(), t0.Add(500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StatusActive, res.Status)

	res, err = s.ProcessFrame(testutil.Standing(t0).Build(), t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, res.Status)

	_, err = s.ProcessFrame(testutil.Standing(t0).Build(), t0.Add(2*time.Second))
	assert.True(t, errors.Is(err, ErrSessionClosed))

	sum := s.End(t0.Add(5 * time.Second))
	assert.Equal(t, StatusTimeout, sum.Status)
	assert.Equal(t, 1.0, sum.Duration)
}

func TestEnd_Idempotent(t *testing.T) {
	t.Parallel()
	def := raiseDefinition()
	def.AlignmentRules = []exercise.AlignmentRule{shoulderLevel}
	s := mustStart(t, def, 5, time.Minute)
	f := newFeeder(t, s)
	f.arms(cycle[:6]...)

	first := s.End(f.now)
	assert.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, StatusCompleted, s.Status())

	second := s.End(f.now.Add(time.Hour))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second End changed the summary (-first +second):\n%s", diff)
	}
	_, err := s.ProcessFrame(testutil.Standing(f.now).Build(), f.now.Add(step))
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestExpire(t *testing.T) {
	t.Parallel()
	s := mustStart(t, raiseDefinition(), 3, time.Minute)
	sum := s.Expire(t0.Add(10 * time.Second))
	assert.Equal(t, StatusTimeout, sum.Status)
	assert.Equal(t, StatusTimeout, s.End(t0.Add(20*time.Second)).Status)
}

// ---- Alignment integration ----

func TestProcessFrame_AlignmentErrorsLowerQuality(t *testing.T) {
	t.Parallel()
	def := raiseDefinition()
	def.AlignmentRules = []exercise.AlignmentRule{shoulderLevel}
	s := mustStart(t, def, 5, time.Minute)
	f := newFeeder(t, s)

	var alerts []alignment.Alert
	for _, a := range cycle {
		a := a
		tilt := a == 100
		res := f.next(func(ts time.Time) pose.Frame {
			b := testutil.Standing(ts).Arms(a)
			if tilt {
				b.Lift(pose.RightShoulder, 0.08)
			}
			return b.Build()
		})
		alerts = append(alerts, res.Alerts...)
	}
	assert.Len(t, alerts, 8)
	assert.Equal(t, 1, s.Reps())

	stats := s.ErrorStats()["shoulderLevel"]
	assert.Equal(t, 1, stats.Count)
	assert.InDelta(t, 0.4, stats.TotalTime, 1e-9)
	assert.Equal(t, 0.0, s.ErrorTimers()["shoulderLevel"])

	sum := s.End(f.now)
	assert.Equal(t, 0.8, sum.Duration)
	assert.Equal(t, 0.6, sum.QualityScore)
	assert.Equal(t, alignment.ErrorStat{Count: 1, TotalTime: 0.4}, sum.Errors["shoulderLevel"])
	assert.InDelta(t, 0.4, sum.TotalErrorTime(), 1e-9)
}

func TestProcessFrame_VelocityAfterTrackingGap(t *testing.T) {
	t.Parallel()
	def := raiseDefinition()
	def.AlignmentRules = []exercise.AlignmentRule{{
		Name:               "jerky",
		Kind:               exercise.RuleAngularVelocity,
		Joints:             []pose.JointName{pose.LeftElbow, pose.LeftShoulder, pose.LeftHip},
		MaxAngularVelocity: 200,
		Message:            "Move smoothly",
	}}
	s := mustStart(t, def, 5, time.Minute)
	f := newFeeder(t, s)

	// A steady 1° per 50 ms frame is 20°/s.
	for _, res := range f.arms(81, 82) {
		assert.Empty(t, res.Alerts)
	}
	for i := 0; i < 10; i++ {
		res := f.next(testutil.Empty)
		require.Equal(t, StatusPaused, res.Status)
	}
	res := f.arms(93)[0]
	assert.Equal(t, StatusActive, res.Status)
	assert.Empty(t, res.Alerts)

	sum := s.End(f.now)
	assert.Empty(t, sum.Errors)
	assert.Equal(t, 1.0, sum.QualityScore)
}

func TestProcessFrame_RestPhaseSkipsAlignment(t *testing.T) {
	t.Parallel()
	def := raiseDefinition()
	def.AlignmentRules = []exercise.AlignmentRule{shoulderLevel}
	s := mustStart(t, def, 5, time.Minute)
	f := newFeeder(t, s)

	for i := 0; i < 20; i++ {
		res := f.next(func(ts time.Time) pose.Frame {
			return testutil.Standing(ts).Arms(10).Lift(pose.RightShoulder, 0.08).Build()
		})
		assert.Empty(t, res.Alerts)
	}
	assert.Empty(t, s.ErrorStats())
}

// ---- Observer ----

func TestObserver_FiresOnPhaseChanges(t *testing.T) {
	t.Parallel()
	var events []ProgressEvent
	obs := ObserverFunc(func(e ProgressEvent) { events = append(events, e) })
	s := mustStart(t, raiseDefinition(), 3, time.Minute, WithObserver(obs), WithID("obs"))
	f := newFeeder(t, s)
	f.arms(cycle...)

	require.Len(t, events, 3)
	phases := []reps.Phase{events[0].Phase, events[1].Phase, events[2].Phase}
	assert.Equal(t, []reps.Phase{reps.PhaseEntered, reps.PhaseCounted, reps.PhaseOutside}, phases)
	assert.Equal(t, EventProgress, events[1].Event)
	assert.Equal(t, "obs", events[1].SessionID)
	assert.Equal(t, 1, events[1].RepCount)
	assert.InDelta(t, 100, events[1].MeasuredAngles["left_shoulder"], 1e-9)
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	t.Parallel()
	obs := NewChannelObserver(1)
	obs.OnProgress(ProgressEvent{RepCount: 1})
	obs.OnProgress(ProgressEvent{RepCount: 2})
	assert.Equal(t, int64(1), obs.Dropped())
	e := <-obs.Events()
	assert.Equal(t, 1, e.RepCount)
}

// ---- Scoring helpers ----

func TestQualityScore(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		errors, seconds float64
		want            float64
	}{
		{"no errors", 0, 120, 1},
		{"no errors short session", 0, 0.2, 1},
		{"half", 30, 60, 0.5},
		{"errors exceed duration", 90, 60, 0},
		{"short session uses one second", 0.5, 0.2, 0.5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, QualityScore(tt.errors, tt.seconds), 1e-12)
		})
	}
}

func TestClassifyStability(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, StabilityGood, ClassifyStability(1.99, cfg))
	assert.Equal(t, StabilityModerate, ClassifyStability(2, cfg))
	assert.Equal(t, StabilityModerate, ClassifyStability(4.9, cfg))
	assert.Equal(t, StabilityPoor, ClassifyStability(5, cfg))
}

func TestJointStat(t *testing.T) {
	t.Parallel()
	var js JointStat
	assert.Equal(t, JointSummary{}, js.Normalize())
	for _, v := range []float64{90.123, 45.5, 120.456} {
		js.Add(v)
	}
	assert.Equal(t, JointSummary{Min: 45.5, Max: 120.46, Avg: 85.36, Count: 3}, js.Normalize())
}
