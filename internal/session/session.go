// Package session aggregates a stream of pose frames into repetition
// counts, form statistics and a scored summary.
//
// A Session is driven by one caller at a time: ProcessFrame for each frame
// and End once. Manager adds per-session serialization, definition lookup
// and summary persistence on top for callers handling many sessions.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rehab.report/internal/alignment"
	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/pose"
	"github.com/banshee-data/rehab.report/internal/reps"
	"github.com/banshee-data/rehab.report/internal/smoothing"
	"github.com/banshee-data/rehab.report/internal/timeutil"
)

var (
	// ErrSessionClosed is returned for frames delivered to a terminal session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrNotFound is returned when no session exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidTarget is returned by Start for non-positive targets.
	ErrInvalidTarget = errors.New("invalid session target")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED" // Tracking lost for the latest frame
	StatusCompleted Status = "COMPLETED"
	StatusTimeout   Status = "TIMEOUT"
)

// IsTerminal reports whether no further frames are accepted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusTimeout
}

// FrameResult is the per-frame outcome returned to the caller.
type FrameResult struct {
	Status   Status             `json:"status"`
	RepCount int                `json:"repCount"`
	Phase    reps.Phase         `json:"phase"`
	Angles   map[string]float64 `json:"measuredAngles,omitempty"`
	Alerts   []alignment.Alert  `json:"alerts,omitempty"`

	// TrackedAngle is the averaged smoothed angle fed to the counter.
	TrackedAngle float64 `json:"trackedAngle,omitempty"`
	// Accuracy is 0-100 closeness of the tracked angle to the target range.
	Accuracy float64 `json:"accuracy,omitempty"`
	// Counted is set on the frame that completed a repetition.
	Counted bool `json:"counted,omitempty"`
	// MissingJoints lists required joints that failed visibility.
	MissingJoints []pose.JointName `json:"missingJoints,omitempty"`
	DeltaSeconds  float64          `json:"dt"`
}

// Session holds the mutable state of one exercise session. It is not safe
// for concurrent use.
type Session struct {
	ID          string
	Definition  *exercise.Definition
	TargetReps  int
	MaxDuration time.Duration
	StartedAt   time.Time

	cfg      Config
	observer Observer
	required []pose.JointName

	status      Status
	counter     reps.Counter
	smoother    *smoothing.Smoother
	evaluator   *alignment.Evaluator
	lastFrameAt time.Time
	frames      int

	lostTime     float64
	unstableTime float64
	jointStats   map[string]*JointStat

	summary *Summary
}

// Start creates a session for def. targetReps must be positive; a
// non-positive maxDuration disables the timeout.
func Start(def *exercise.Definition, targetReps int, maxDuration time.Duration, now time.Time, opts ...Option) (*Session, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil exercise definition", exercise.ErrInvalidDefinition)
	}
	if targetReps <= 0 {
		return nil, fmt.Errorf("%w: target reps %d", ErrInvalidTarget, targetReps)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		Definition:  def,
		TargetReps:  targetReps,
		MaxDuration: maxDuration,
		StartedAt:   now,
		cfg:         DefaultConfig(),
		status:      StatusActive,
		lastFrameAt: now,
		jointStats:  make(map[string]*JointStat),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	alpha := def.Rep.SmoothingAlpha
	if alpha <= 0 {
		alpha = s.cfg.SmoothingAlpha
	}
	s.smoother = smoothing.NewSmoother(alpha)
	s.counter = reps.New(def.Rep, s.cfg.FallbackDownBelow, s.cfg.FallbackUpAbove)
	s.evaluator = alignment.NewEvaluator(def.AlignmentRules, s.cfg.DebounceSeconds)
	s.required = requiredJoints(def)

	diagf("session %s started: exercise=%s target=%d max=%s mode=%s",
		s.ID, def.ID, targetReps, maxDuration, def.Rep.EffectiveMode())
	return s, nil
}

// requiredJoints is the critical joint list followed by any tracked-angle
// joints it omits, in declaration order.
func requiredJoints(def *exercise.Definition) []pose.JointName {
	seen := make(map[pose.JointName]bool)
	var out []pose.JointName
	add := func(j pose.JointName) {
		if !seen[j] {
			seen[j] = true
			out = append(out, j)
		}
	}
	for _, j := range def.CriticalJoints {
		add(j)
	}
	for _, spec := range def.Rep.Angles {
		for _, j := range spec.Joints() {
			add(j)
		}
	}
	return out
}

// ProcessFrame runs one frame through the pipeline: delta time, timeout,
// visibility, smoothing, rep counting, alignment, joint stats, completion.
func (s *Session) ProcessFrame(f pose.Frame, now time.Time) (FrameResult, error) {
	if s.status.IsTerminal() {
		return FrameResult{}, fmt.Errorf("%w: %s is %s", ErrSessionClosed, s.ID, s.status)
	}

	dt := timeutil.DeltaSeconds(s.lastFrameAt, now)
	if now.After(s.lastFrameAt) {
		s.lastFrameAt = now
	}
	s.frames++

	if s.MaxDuration > 0 && now.Sub(s.StartedAt) >= s.MaxDuration {
		s.finish(StatusTimeout, now)
		return s.result(dt), nil
	}

	if !f.HasPose() {
		s.lostTime += dt
		s.evaluator.Skip(dt)
		s.status = StatusPaused
		tracef("session %s: no pose (dt=%.3f lost=%.3f)", s.ID, dt, s.lostTime)
		return s.result(dt), nil
	}

	if ok, missing := pose.ValidateVisibility(f, s.required, s.cfg.VisibilityThreshold); !ok {
		s.lostTime += dt
		s.unstableTime += dt
		s.evaluator.Skip(dt)
		s.status = StatusPaused
		tracef("session %s: low visibility %v", s.ID, missing)
		res := s.result(dt)
		res.MissingJoints = missing
		return res, nil
	}
	s.status = StatusActive

	angles := make(map[string]float64, len(s.Definition.Rep.Angles))
	sum, valid := 0.0, true
	for _, spec := range s.Definition.Rep.Angles {
		m := s.smoother.Update(spec.Name, f.Angle(spec))
		if !m.Valid {
			valid = false
			continue
		}
		angles[spec.Name] = m.Value
		sum += m.Value
		s.jointStat(spec.Name).Add(m.Value)
	}

	var tr reps.Transition
	var tracked, accuracy float64
	if valid && len(angles) > 0 {
		tracked = sum / float64(len(angles))
		tr = s.counter.Update(tracked, now)
		accuracy = reps.Accuracy(tracked, s.counter.Target())
	}

	alerts := s.evaluator.Evaluate(f, s.counter.Active(), dt)

	if s.counter.Reps() >= s.TargetReps {
		s.finish(StatusCompleted, now)
	}

	res := s.result(dt)
	res.Angles = angles
	res.Alerts = alerts
	res.TrackedAngle = tracked
	res.Accuracy = accuracy
	res.Counted = tr.Counted

	if tr.Changed() {
		tracef("session %s: %s -> %s reps=%d", s.ID, tr.From, tr.To, s.counter.Reps())
		s.notify(now, angles)
	}
	return res, nil
}

func (s *Session) result(dt float64) FrameResult {
	return FrameResult{
		Status:       s.status,
		RepCount:     s.counter.Reps(),
		Phase:        s.counter.Phase(),
		DeltaSeconds: dt,
	}
}

func (s *Session) jointStat(name string) *JointStat {
	js := s.jointStats[name]
	if js == nil {
		js = &JointStat{}
		s.jointStats[name] = js
	}
	return js
}

func (s *Session) notify(now time.Time, angles map[string]float64) {
	if s.observer == nil {
		return
	}
	s.observer.OnProgress(ProgressEvent{
		Event:          EventProgress,
		SessionID:      s.ID,
		RepCount:       s.counter.Reps(),
		Status:         s.status,
		Phase:          s.counter.Phase(),
		MeasuredAngles: angles,
		Timestamp:      now,
	})
}

// finish moves the session to a terminal status and freezes the summary.
func (s *Session) finish(status Status, now time.Time) {
	s.status = status
	sum := s.buildSummary(now)
	s.summary = &sum
	diagf("session %s %s: reps=%d/%d quality=%.2f", s.ID, status, sum.CompletedReps, s.TargetReps, sum.QualityScore)
}

// End snapshots the session into its summary. A session that is still
// running is marked COMPLETED first. Calling End again returns the same
// summary without touching any state.
func (s *Session) End(now time.Time) Summary {
	if s.summary == nil {
		s.finish(StatusCompleted, now)
	}
	return *s.summary
}

// Expire marks a running session TIMEOUT, as the idle reaper does.
// Terminal sessions are returned unchanged.
func (s *Session) Expire(now time.Time) Summary {
	if s.summary == nil {
		s.finish(StatusTimeout, now)
	}
	return *s.summary
}

// Status returns the session status.
func (s *Session) Status() Status { return s.status }

// Reps returns the completed repetition count.
func (s *Session) Reps() int { return s.counter.Reps() }

// Phase returns the counter phase.
func (s *Session) Phase() reps.Phase { return s.counter.Phase() }

// LostTime returns the cumulative seconds without usable tracking.
func (s *Session) LostTime() float64 { return s.lostTime }

// UnstableTime returns the cumulative seconds of low-visibility frames.
func (s *Session) UnstableTime() float64 { return s.unstableTime }

// LastFrameAt returns the timestamp of the latest processed frame, or the
// start time before any frame.
func (s *Session) LastFrameAt() time.Time { return s.lastFrameAt }

// Frames returns the number of frames delivered, including dropped ones.
func (s *Session) Frames() int { return s.frames }

// SmoothedAngles returns the smoothed-angle cache.
func (s *Session) SmoothedAngles() map[string]float64 { return s.smoother.Snapshot() }

// ErrorStats returns the accumulated alignment statistics.
func (s *Session) ErrorStats() map[string]alignment.ErrorStat { return s.evaluator.Stats() }

// ErrorTimers returns the running alignment debounce timers.
func (s *Session) ErrorTimers() map[string]float64 { return s.evaluator.Timers() }

// JointStats returns a copy of the running per-angle statistics.
func (s *Session) JointStats() map[string]JointStat {
	out := make(map[string]JointStat, len(s.jointStats))
	for k, v := range s.jointStats {
		out[k] = *v
	}
	return out
}

// Summary returns the frozen summary once the session is terminal.
func (s *Session) Summary() (Summary, bool) {
	if s.summary == nil {
		return Summary{}, false
	}
	return *s.summary, true
}
