package session

import (
	"github.com/banshee-data/rehab.report/internal/config"
)

// Config holds the deployment-tunable parameters a session reads at start.
type Config struct {
	VisibilityThreshold float64 // Live tracking profile
	SmoothingAlpha      float64 // Used when the definition does not set one
	DebounceSeconds     float64 // Used by rules without their own debounce

	StabilityGoodSeconds     float64 // Lost time below this is "good"
	StabilityModerateSeconds float64 // Lost time below this is "moderate"

	FallbackDownBelow float64 // Threshold counter defaults
	FallbackUpAbove   float64
}

// ConfigFromTuning extracts the session parameters from a tuning config.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		VisibilityThreshold:      t.GetLiveVisibilityThreshold(),
		SmoothingAlpha:           t.GetSmoothingAlpha(),
		DebounceSeconds:          t.GetDebounceSeconds(),
		StabilityGoodSeconds:     t.GetStabilityGoodSeconds(),
		StabilityModerateSeconds: t.GetStabilityModerateSeconds(),
		FallbackDownBelow:        t.GetFallbackDownBelow(),
		FallbackUpAbove:          t.GetFallbackUpAbove(),
	}
}

// DefaultConfig returns the built-in session parameters.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// Option customises a session at Start.
type Option func(*Session)

// WithConfig overrides the session parameters.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithObserver attaches a progress observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithID sets the session id. Sessions started without one get a random UUID.
func WithID(id string) Option {
	return func(s *Session) { s.ID = id }
}
