package session

import (
	"math"
	"time"

	"github.com/banshee-data/rehab.report/internal/alignment"
	"github.com/banshee-data/rehab.report/internal/units"
)

// Stability classifies cumulative tracking loss.
type Stability string

const (
	StabilityGood     Stability = "good"
	StabilityModerate Stability = "moderate"
	StabilityPoor     Stability = "poor"
)

// ClassifyStability buckets lostSeconds against the configured thresholds.
func ClassifyStability(lostSeconds float64, cfg Config) Stability {
	switch {
	case lostSeconds < cfg.StabilityGoodSeconds:
		return StabilityGood
	case lostSeconds < cfg.StabilityModerateSeconds:
		return StabilityModerate
	}
	return StabilityPoor
}

// QualityScore is 1 minus the error time per second of session, clamped
// to [0, 1]. Durations under one second are treated as one second.
func QualityScore(errorSeconds, durationSeconds float64) float64 {
	return units.Clamp(1-errorSeconds/math.Max(durationSeconds, 1), 0, 1)
}

// JointStat is a running min/max/sum/count over one measured angle.
type JointStat struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

// Add folds v into the statistic.
func (j *JointStat) Add(v float64) {
	if j.Count == 0 || v < j.Min {
		j.Min = v
	}
	if j.Count == 0 || v > j.Max {
		j.Max = v
	}
	j.Sum += v
	j.Count++
}

// Normalize returns min/max/avg rounded to two places. Empty stats yield
// zeros.
func (j JointStat) Normalize() JointSummary {
	if j.Count == 0 {
		return JointSummary{}
	}
	return JointSummary{
		Min:   units.Round(j.Min, 2),
		Max:   units.Round(j.Max, 2),
		Avg:   units.Round(j.Sum/float64(j.Count), 2),
		Count: j.Count,
	}
}

// JointSummary is a normalized JointStat.
type JointSummary struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Tracking summarises tracking loss over a session.
type Tracking struct {
	LostTime     float64   `json:"lostTime"`
	UnstableTime float64   `json:"unstableTime"`
	Stability    Stability `json:"stability"`
}

// Summary is the immutable result of a session.
type Summary struct {
	SessionID     string                         `json:"sessionId"`
	ExerciseID    string                         `json:"exerciseId"`
	ExerciseName  string                         `json:"exercise"`
	Status        Status                         `json:"status"`
	TargetReps    int                            `json:"targetReps"`
	CompletedReps int                            `json:"completedReps"`
	StartedAt     time.Time                      `json:"startedAt"`
	EndedAt       time.Time                      `json:"endedAt"`
	Duration      float64                        `json:"duration"` // seconds
	QualityScore  float64                        `json:"qualityScore"`
	Errors        map[string]alignment.ErrorStat `json:"errors"`
	Tracking      Tracking                       `json:"tracking"`
	Joints        map[string]JointSummary        `json:"joints"`
	Frames        int                            `json:"frames"`
}

// TotalErrorTime sums the violation time of every error type.
func (s Summary) TotalErrorTime() float64 {
	total := 0.0
	for _, e := range s.Errors {
		total += e.TotalTime
	}
	return total
}

func (s *Session) buildSummary(now time.Time) Summary {
	duration := now.Sub(s.StartedAt).Seconds()
	if duration < 0 {
		duration = 0
	}

	errs := make(map[string]alignment.ErrorStat)
	for name, st := range s.evaluator.Stats() {
		errs[name] = alignment.ErrorStat{Count: st.Count, TotalTime: units.Round(st.TotalTime, 2)}
	}
	joints := make(map[string]JointSummary, len(s.jointStats))
	for name, js := range s.jointStats {
		joints[name] = js.Normalize()
	}

	return Summary{
		SessionID:     s.ID,
		ExerciseID:    s.Definition.ID,
		ExerciseName:  s.Definition.Name,
		Status:        s.status,
		TargetReps:    s.TargetReps,
		CompletedReps: s.counter.Reps(),
		StartedAt:     s.StartedAt,
		EndedAt:       now,
		Duration:      units.Round(duration, 2),
		QualityScore:  units.Round(QualityScore(s.evaluator.TotalErrorTime(), duration), 2),
		Errors:        errs,
		Tracking: Tracking{
			LostTime:     units.Round(s.lostTime, 2),
			UnstableTime: units.Round(s.unstableTime, 2),
			Stability:    ClassifyStability(s.lostTime, s.cfg),
		},
		Joints: joints,
		Frames: s.frames,
	}
}
