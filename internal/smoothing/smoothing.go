// Package smoothing implements exponential smoothing of per-frame scalar
// measurements that tolerates missing samples.
package smoothing

import (
	"sort"

	"github.com/banshee-data/rehab.report/internal/pose"
)

// DefaultAlpha is the weight given to the newest sample.
const DefaultAlpha = 0.7

// EMA returns alpha*next + (1-alpha)*prev. A missing next carries prev
// forward unchanged; a missing prev (first observation) yields next.
func EMA(next, prev pose.Measurement, alpha float64) pose.Measurement {
	if !next.Valid {
		return prev
	}
	if !prev.Valid {
		return next
	}
	return pose.Measured(alpha*next.Value + (1-alpha)*prev.Value)
}

// Smoother keeps the last smoothed value per key. Each key is smoothed
// independently. Not safe for concurrent use; the owning session
// serialises access.
type Smoother struct {
	Alpha  float64
	values map[string]float64
}

// NewSmoother creates a Smoother. Alpha outside (0, 1] falls back to DefaultAlpha.
func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Smoother{
		Alpha:  alpha,
		values: make(map[string]float64),
	}
}

// Update folds m into the value for key and returns the smoothed result.
func (s *Smoother) Update(key string, m pose.Measurement) pose.Measurement {
	out := EMA(m, s.Last(key), s.Alpha)
	if out.Valid {
		s.values[key] = out.Value
	}
	return out
}

// Last returns the current smoothed value for key.
func (s *Smoother) Last(key string) pose.Measurement {
	v, ok := s.values[key]
	if !ok {
		return pose.Unavailable
	}
	return pose.Measured(v)
}

// Snapshot returns a copy of all smoothed values.
func (s *Smoother) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Keys returns the tracked keys in sorted order.
func (s *Smoother) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset clears all smoothed values.
func (s *Smoother) Reset() {
	s.values = make(map[string]float64)
}
