// Package alignment evaluates form rules against pose frames and turns
// continuous violations into discrete, debounced error occurrences.
package alignment

import (
	"sort"

	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/pose"
)

// DefaultDebounceSeconds is the continuous violation needed for one
// counted occurrence when neither the rule nor the tuning sets one.
const DefaultDebounceSeconds = 0.4

// debounceEpsilon absorbs float accumulation when a timer lands exactly
// on the debounce threshold.
const debounceEpsilon = 1e-9

// Alert is a rule violation observed in a single frame.
type Alert struct {
	Rule    string            `json:"rule"`
	Kind    exercise.RuleKind `json:"kind"`
	Message string            `json:"message"`
	Value   float64           `json:"value"`
	Limit   float64           `json:"limit"`
}

// ErrorStat accumulates one rule's violations over a session.
type ErrorStat struct {
	Count     int     `json:"count"`
	TotalTime float64 `json:"totalTime"` // seconds
}

// Evaluator holds the per-rule timers and statistics for one session.
// It is not safe for concurrent use.
type Evaluator struct {
	rules           []exercise.AlignmentRule
	defaultDebounce float64

	timers    map[string]float64
	stats     map[string]*ErrorStat
	lastAngle map[string]float64

	// sinceAngle is the seconds elapsed since lastAngle was sampled.
	sinceAngle map[string]float64
}

// NewEvaluator returns an evaluator for rules. defaultDebounce applies to
// rules without their own debounce; non-positive means DefaultDebounceSeconds.
func NewEvaluator(rules []exercise.AlignmentRule, defaultDebounce float64) *Evaluator {
	if defaultDebounce <= 0 {
		defaultDebounce = DefaultDebounceSeconds
	}
	return &Evaluator{
		rules:           rules,
		defaultDebounce: defaultDebounce,
		timers:          make(map[string]float64, len(rules)),
		stats:           make(map[string]*ErrorStat, len(rules)),
		lastAngle:       make(map[string]float64),
		sinceAngle:      make(map[string]float64),
	}
}

func (e *Evaluator) debounceFor(rule exercise.AlignmentRule) float64 {
	if rule.DebounceSeconds > 0 {
		return rule.DebounceSeconds
	}
	return e.defaultDebounce
}

// measure returns the rule's derived quantity and its limit. The angular
// velocity rule divides by the time since its last sample, not the last
// frame, and records the angle for the next frame.
func (e *Evaluator) measure(f pose.Frame, rule exercise.AlignmentRule, dt float64) (pose.Measurement, float64) {
	switch rule.Kind {
	case exercise.RuleLevel:
		return f.HeightDifference(rule.Joints[0], rule.Joints[1]), rule.MaxHeightDifference
	case exercise.RuleMaxAngle:
		return f.Angle(rule.AngleSpec()), rule.MaxAngle
	case exercise.RuleVerticalDeviation:
		return f.VerticalDeviation(rule.Joints[0], rule.Joints[1]), rule.MaxAngleDeviation
	case exercise.RuleAngularVelocity:
		prev, seen := e.lastAngle[rule.Name]
		elapsed := e.sinceAngle[rule.Name] + dt
		if !e.sample(f, rule, dt) || !seen || elapsed <= 0 {
			return pose.Unavailable, rule.MaxAngularVelocity
		}
		v := e.lastAngle[rule.Name] - prev
		if v < 0 {
			v = -v
		}
		return pose.Measured(v / elapsed), rule.MaxAngularVelocity
	}
	opsf("rule %s has unknown kind %q, skipping", rule.Name, rule.Kind)
	return pose.Unavailable, 0
}

// sample moves the velocity reference of rule to f when the angle is
// measurable, otherwise it ages the existing reference by dt.
func (e *Evaluator) sample(f pose.Frame, rule exercise.AlignmentRule, dt float64) bool {
	angle := f.Angle(rule.AngleSpec())
	if !angle.Valid {
		if _, seen := e.lastAngle[rule.Name]; seen {
			e.sinceAngle[rule.Name] += dt
		}
		return false
	}
	e.lastAngle[rule.Name] = angle.Value
	e.sinceAngle[rule.Name] = 0
	return true
}

// Skip ages the velocity references by dt for a frame that was not
// evaluated, such as one with the pose lost.
func (e *Evaluator) Skip(dt float64) {
	for name := range e.lastAngle {
		e.sinceAngle[name] += dt
	}
}

// Evaluate checks every rule against f. dt is the seconds since the
// previous processed frame. While inactive, all timers reset and nothing
// is evaluated. The returned alerts are the rules violated in this frame.
func (e *Evaluator) Evaluate(f pose.Frame, active bool, dt float64) []Alert {
	if !active {
		for _, rule := range e.rules {
			e.timers[rule.Name] = 0
			// Keep the velocity reference current so the first active
			// frame does not see a stale jump.
			if rule.Kind == exercise.RuleAngularVelocity {
				e.sample(f, rule, dt)
			}
		}
		return nil
	}

	var alerts []Alert
	for _, rule := range e.rules {
		m, limit := e.measure(f, rule, dt)
		if !m.Valid {
			continue
		}
		tracef("rule=%s value=%.4f limit=%.4f", rule.Name, m.Value, limit)

		if m.Value <= limit {
			e.timers[rule.Name] = 0
			continue
		}

		stat := e.stats[rule.Name]
		if stat == nil {
			stat = &ErrorStat{}
			e.stats[rule.Name] = stat
		}
		stat.TotalTime += dt
		e.timers[rule.Name] += dt
		if e.timers[rule.Name] >= e.debounceFor(rule)-debounceEpsilon {
			stat.Count++
			e.timers[rule.Name] = 0
			diagf("rule %s occurrence %d (value=%.3f limit=%.3f)", rule.Name, stat.Count, m.Value, limit)
		}

		alerts = append(alerts, Alert{
			Rule:    rule.Name,
			Kind:    rule.Kind,
			Message: rule.Message,
			Value:   m.Value,
			Limit:   limit,
		})
	}
	return alerts
}

// Stats returns a copy of the accumulated statistics for every rule that
// has been violated at least once.
func (e *Evaluator) Stats() map[string]ErrorStat {
	out := make(map[string]ErrorStat, len(e.stats))
	for name, s := range e.stats {
		out[name] = *s
	}
	return out
}

// Timers returns a copy of the running debounce timers.
func (e *Evaluator) Timers() map[string]float64 {
	out := make(map[string]float64, len(e.timers))
	for name, v := range e.timers {
		out[name] = v
	}
	return out
}

// TotalErrorTime sums the cumulative violation time of every rule.
func (e *Evaluator) TotalErrorTime() float64 {
	names := make([]string, 0, len(e.stats))
	for name := range e.stats {
		names = append(names, name)
	}
	// Sorted for a deterministic float sum.
	sort.Strings(names)
	total := 0.0
	for _, name := range names {
		total += e.stats[name].TotalTime
	}
	return total
}

// Rules returns the evaluated rules.
func (e *Evaluator) Rules() []exercise.AlignmentRule {
	return e.rules
}
