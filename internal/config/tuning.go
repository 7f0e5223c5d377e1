package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the deployment-tunable parameters of the engine.
// Every field is optional; the Get* accessors fall back to the built-in
// defaults so partial files are safe.
type TuningConfig struct {
	// Visibility profiles
	LiveVisibilityThreshold    *float64 `json:"live_visibility_threshold,omitempty"`
	CaptureVisibilityThreshold *float64 `json:"capture_visibility_threshold,omitempty"`

	// Smoothing
	SmoothingAlpha *float64 `json:"smoothing_alpha,omitempty"`

	// Alignment
	DebounceSeconds *float64 `json:"debounce_seconds,omitempty"`

	// Tracking stability classification (seconds of lost tracking)
	StabilityGoodSeconds     *float64 `json:"stability_good_seconds,omitempty"`
	StabilityModerateSeconds *float64 `json:"stability_moderate_seconds,omitempty"`

	// Threshold fallback counter
	FallbackDownBelow *float64 `json:"fallback_down_below,omitempty"`
	FallbackUpAbove   *float64 `json:"fallback_up_above,omitempty"`

	// Offline detection
	ReturnTolerance  *float64 `json:"return_tolerance,omitempty"`
	MinDetectSamples *int     `json:"min_detect_samples,omitempty"`
	MinCaptureFrames *int     `json:"min_capture_frames,omitempty"`

	// Session reaper
	IdleTimeout *string `json:"idle_timeout,omitempty"` // duration string like "30s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		LiveVisibilityThreshold:    ptrFloat64(e.GetLiveVisibilityThreshold()),
		CaptureVisibilityThreshold: ptrFloat64(e.GetCaptureVisibilityThreshold()),
		SmoothingAlpha:             ptrFloat64(e.GetSmoothingAlpha()),
		DebounceSeconds:            ptrFloat64(e.GetDebounceSeconds()),
		StabilityGoodSeconds:       ptrFloat64(e.GetStabilityGoodSeconds()),
		StabilityModerateSeconds:   ptrFloat64(e.GetStabilityModerateSeconds()),
		FallbackDownBelow:          ptrFloat64(e.GetFallbackDownBelow()),
		FallbackUpAbove:            ptrFloat64(e.GetFallbackUpAbove()),
		ReturnTolerance:            ptrFloat64(e.GetReturnTolerance()),
		MinDetectSamples:           ptrInt(e.GetMinDetectSamples()),
		MinCaptureFrames:           ptrInt(e.GetMinCaptureFrames()),
		IdleTimeout:                ptrString(e.GetIdleTimeout().String()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/storage/sqlite/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func checkUnit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if err := checkUnit("live_visibility_threshold", c.LiveVisibilityThreshold); err != nil {
		return err
	}
	if err := checkUnit("capture_visibility_threshold", c.CaptureVisibilityThreshold); err != nil {
		return err
	}
	if c.SmoothingAlpha != nil && (*c.SmoothingAlpha <= 0 || *c.SmoothingAlpha > 1) {
		return fmt.Errorf("smoothing_alpha must be in (0, 1], got %f", *c.SmoothingAlpha)
	}
	if c.DebounceSeconds != nil && *c.DebounceSeconds <= 0 {
		return fmt.Errorf("debounce_seconds must be positive, got %f", *c.DebounceSeconds)
	}
	if c.GetStabilityGoodSeconds() > c.GetStabilityModerateSeconds() {
		return fmt.Errorf("stability_good_seconds (%f) must not exceed stability_moderate_seconds (%f)",
			c.GetStabilityGoodSeconds(), c.GetStabilityModerateSeconds())
	}
	if c.GetFallbackDownBelow() >= c.GetFallbackUpAbove() {
		return fmt.Errorf("fallback_down_below (%f) must be below fallback_up_above (%f)",
			c.GetFallbackDownBelow(), c.GetFallbackUpAbove())
	}
	if c.ReturnTolerance != nil && *c.ReturnTolerance < 0 {
		return fmt.Errorf("return_tolerance must be non-negative, got %f", *c.ReturnTolerance)
	}
	if c.MinDetectSamples != nil && *c.MinDetectSamples < 3 {
		return fmt.Errorf("min_detect_samples must be at least 3, got %d", *c.MinDetectSamples)
	}
	if c.MinCaptureFrames != nil && *c.MinCaptureFrames < 1 {
		return fmt.Errorf("min_capture_frames must be positive, got %d", *c.MinCaptureFrames)
	}
	if c.IdleTimeout != nil && *c.IdleTimeout != "" {
		if _, err := time.ParseDuration(*c.IdleTimeout); err != nil {
			return fmt.Errorf("invalid idle_timeout '%s': %w", *c.IdleTimeout, err)
		}
	}
	return nil
}

// GetLiveVisibilityThreshold returns the live_visibility_threshold value or the default.
func (c *TuningConfig) GetLiveVisibilityThreshold() float64 {
	if c.LiveVisibilityThreshold == nil {
		return 0.35
	}
	return *c.LiveVisibilityThreshold
}

// GetCaptureVisibilityThreshold returns the capture_visibility_threshold value or the default.
func (c *TuningConfig) GetCaptureVisibilityThreshold() float64 {
	if c.CaptureVisibilityThreshold == nil {
		return 0.5
	}
	return *c.CaptureVisibilityThreshold
}

// GetSmoothingAlpha returns the smoothing_alpha value or the default.
func (c *TuningConfig) GetSmoothingAlpha() float64 {
	if c.SmoothingAlpha == nil {
		return 0.7
	}
	return *c.SmoothingAlpha
}

// GetDebounceSeconds returns the debounce_seconds value or the default.
func (c *TuningConfig) GetDebounceSeconds() float64 {
	if c.DebounceSeconds == nil {
		return 0.4
	}
	return *c.DebounceSeconds
}

// GetStabilityGoodSeconds returns the stability_good_seconds value or the default.
func (c *TuningConfig) GetStabilityGoodSeconds() float64 {
	if c.StabilityGoodSeconds == nil {
		return 2.0
	}
	return *c.StabilityGoodSeconds
}

// GetStabilityModerateSeconds returns the stability_moderate_seconds value or the default.
func (c *TuningConfig) GetStabilityModerateSeconds() float64 {
	if c.StabilityModerateSeconds == nil {
		return 5.0
	}
	return *c.StabilityModerateSeconds
}

// GetFallbackDownBelow returns the fallback_down_below value or the default.
func (c *TuningConfig) GetFallbackDownBelow() float64 {
	if c.FallbackDownBelow == nil {
		return 40.0
	}
	return *c.FallbackDownBelow
}

// GetFallbackUpAbove returns the fallback_up_above value or the default.
func (c *TuningConfig) GetFallbackUpAbove() float64 {
	if c.FallbackUpAbove == nil {
		return 100.0
	}
	return *c.FallbackUpAbove
}

// GetReturnTolerance returns the return_tolerance value (degrees) or the default.
func (c *TuningConfig) GetReturnTolerance() float64 {
	if c.ReturnTolerance == nil {
		return 5.0
	}
	return *c.ReturnTolerance
}

// GetMinDetectSamples returns the min_detect_samples value or the default.
func (c *TuningConfig) GetMinDetectSamples() int {
	if c.MinDetectSamples == nil {
		return 10
	}
	return *c.MinDetectSamples
}

// GetMinCaptureFrames returns the min_capture_frames value or the default.
func (c *TuningConfig) GetMinCaptureFrames() int {
	if c.MinCaptureFrames == nil {
		return 15
	}
	return *c.MinCaptureFrames
}

// GetIdleTimeout parses and returns the IdleTimeout as a time.Duration.
func (c *TuningConfig) GetIdleTimeout() time.Duration {
	if c.IdleTimeout == nil || *c.IdleTimeout == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.IdleTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}
