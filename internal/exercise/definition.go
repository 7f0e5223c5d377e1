package exercise

import (
	"errors"
	"fmt"

	"github.com/banshee-data/rehab.report/internal/pose"
)

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid exercise definition")

// RepMode selects the repetition counting algorithm.
type RepMode string

const (
	ModeHysteresis RepMode = "hysteresis" // Valid/exit ranges with hold time
	ModeThreshold  RepMode = "threshold"  // down/mid/up threshold crossing
)

// Range is an inclusive [low, high] angle interval in degrees.
type Range [2]float64

// Low returns the lower bound.
func (r Range) Low() float64 { return r[0] }

// High returns the upper bound.
func (r Range) High() float64 { return r[1] }

// Contains reports whether v lies within the inclusive range.
func (r Range) Contains(v float64) bool {
	return v >= r[0] && v <= r[1]
}

// IsZero reports whether the range was left unset.
func (r Range) IsZero() bool {
	return r[0] == 0 && r[1] == 0
}

// Distance returns how far v lies outside the range, zero when inside.
func (r Range) Distance(v float64) float64 {
	switch {
	case v < r[0]:
		return r[0] - v
	case v > r[1]:
		return v - r[1]
	}
	return 0
}

// RepDefinition describes how repetitions are detected.
type RepDefinition struct {
	Mode RepMode `json:"mode,omitempty" toml:"mode"`

	// Angles is the tracked joint set. A single entry tracks one joint;
	// several entries are smoothed independently and averaged.
	Angles []pose.AngleSpec `json:"angles" toml:"angles"`

	// Hysteresis parameters
	ValidRange  Range   `json:"valid_range" toml:"valid_range"`
	ExitRange   Range   `json:"exit_range" toml:"exit_range"`
	MinHoldTime float64 `json:"min_hold_time" toml:"min_hold_time"` // seconds

	// SmoothingAlpha overrides the deployment default when non-zero.
	SmoothingAlpha float64 `json:"smoothing_alpha,omitempty" toml:"smoothing_alpha"`

	// Threshold fallback parameters; zero means the deployment default.
	DownBelow float64 `json:"down_below,omitempty" toml:"down_below"`
	UpAbove   float64 `json:"up_above,omitempty" toml:"up_above"`
}

// EffectiveMode returns the authored mode, inferring hysteresis when both
// ranges are present and threshold otherwise.
func (r RepDefinition) EffectiveMode() RepMode {
	if r.Mode != "" {
		return r.Mode
	}
	if !r.ValidRange.IsZero() && !r.ExitRange.IsZero() {
		return ModeHysteresis
	}
	return ModeThreshold
}

// RuleKind tags the variant of an alignment rule.
type RuleKind string

const (
	// RuleLevel bounds the vertical offset between two joints (e.g. shoulders).
	RuleLevel RuleKind = "level"
	// RuleMaxAngle bounds a three-joint angle from above (hyperextension).
	RuleMaxAngle RuleKind = "max_angle"
	// RuleVerticalDeviation bounds a segment's lean from vertical (spine).
	RuleVerticalDeviation RuleKind = "vertical_deviation"
	// RuleAngularVelocity bounds how fast a three-joint angle changes (jerky movement).
	RuleAngularVelocity RuleKind = "angular_velocity"
)

// AlignmentRule is one form rule. Which threshold applies depends on Kind.
type AlignmentRule struct {
	Name    string           `json:"name" toml:"name"`
	Kind    RuleKind         `json:"kind" toml:"kind"`
	Joints  []pose.JointName `json:"joints" toml:"joints"`
	Message string           `json:"message" toml:"message"`

	MaxHeightDifference float64 `json:"max_height_difference,omitempty" toml:"max_height_difference"`
	MaxAngle            float64 `json:"max_angle,omitempty" toml:"max_angle"`
	MaxAngleDeviation   float64 `json:"max_angle_deviation,omitempty" toml:"max_angle_deviation"`
	MaxAngularVelocity  float64 `json:"max_angular_velocity,omitempty" toml:"max_angular_velocity"` // degrees/second

	// DebounceSeconds is the continuous violation needed for one counted
	// occurrence. Zero means the deployment default.
	DebounceSeconds float64 `json:"debounce_seconds,omitempty" toml:"debounce_seconds"`
}

// AngleSpec returns the rule's joints as an angle spec. Only meaningful
// for three-joint kinds.
func (r AlignmentRule) AngleSpec() pose.AngleSpec {
	if len(r.Joints) != 3 {
		return pose.AngleSpec{Name: r.Name}
	}
	return pose.AngleSpec{Name: r.Name, A: r.Joints[0], B: r.Joints[1], C: r.Joints[2]}
}

// Definition is a complete exercise configuration.
type Definition struct {
	ID             string           `json:"id" toml:"id"`
	Name           string           `json:"name" toml:"name"`
	CriticalJoints []pose.JointName `json:"critical_joints" toml:"critical_joints"`
	Rep            RepDefinition    `json:"rep" toml:"rep"`
	AlignmentRules []AlignmentRule  `json:"alignment_rules,omitempty" toml:"alignment_rules"`
}

// Normalize fills derivable fields: angle names default to the vertex
// joint, and rule messages default to a generic description.
func (d *Definition) Normalize() {
	for i := range d.Rep.Angles {
		if d.Rep.Angles[i].Name == "" {
			d.Rep.Angles[i].Name = string(d.Rep.Angles[i].B)
		}
	}
	for i := range d.AlignmentRules {
		if d.AlignmentRules[i].Message == "" {
			d.AlignmentRules[i].Message = fmt.Sprintf("%s rule violated", d.AlignmentRules[i].Name)
		}
	}
	if d.Name == "" {
		d.Name = d.ID
	}
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}

func checkJoints(where string, joints []pose.JointName, want int) error {
	if want > 0 && len(joints) != want {
		return invalidf("%s: expected %d joints, got %d", where, want, len(joints))
	}
	for _, j := range joints {
		if !pose.IsKnownJoint(j) {
			return invalidf("%s: unknown joint %q", where, j)
		}
	}
	return nil
}

// Validate checks the definition at authoring time.
func (d *Definition) Validate() error {
	if d.Name == "" && d.ID == "" {
		return invalidf("exercise needs an id or a name")
	}
	if err := checkJoints("critical_joints", d.CriticalJoints, 0); err != nil {
		return err
	}
	if err := d.Rep.validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(d.AlignmentRules))
	for i, rule := range d.AlignmentRules {
		if rule.Name == "" {
			return invalidf("alignment_rules[%d]: name is required", i)
		}
		if seen[rule.Name] {
			return invalidf("alignment_rules: duplicate rule %q", rule.Name)
		}
		seen[rule.Name] = true
		if err := rule.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r RepDefinition) validate() error {
	if len(r.Angles) == 0 {
		return invalidf("rep: at least one tracked angle is required")
	}
	names := make(map[string]bool, len(r.Angles))
	for i, a := range r.Angles {
		if err := checkJoints(fmt.Sprintf("rep.angles[%d]", i), a.Joints(), 3); err != nil {
			return err
		}
		if a.Name == "" {
			return invalidf("rep.angles[%d]: name is required", i)
		}
		if names[a.Name] {
			return invalidf("rep.angles: duplicate angle %q", a.Name)
		}
		names[a.Name] = true
	}
	if r.SmoothingAlpha < 0 || r.SmoothingAlpha > 1 {
		return invalidf("rep: smoothing_alpha must be in [0, 1], got %f", r.SmoothingAlpha)
	}

	switch r.EffectiveMode() {
	case ModeHysteresis:
		if r.ValidRange.IsZero() || r.ExitRange.IsZero() {
			return invalidf("rep: hysteresis mode needs valid_range and exit_range")
		}
		if r.ValidRange.Low() > r.ValidRange.High() {
			return invalidf("rep: valid_range low %f exceeds high %f", r.ValidRange.Low(), r.ValidRange.High())
		}
		if r.ExitRange.Low() > r.ExitRange.High() {
			return invalidf("rep: exit_range low %f exceeds high %f", r.ExitRange.Low(), r.ExitRange.High())
		}
		if r.MinHoldTime < 0 {
			return invalidf("rep: min_hold_time must be non-negative, got %f", r.MinHoldTime)
		}
	case ModeThreshold:
		if (r.DownBelow != 0 || r.UpAbove != 0) && r.DownBelow >= r.UpAbove {
			return invalidf("rep: down_below %f must be below up_above %f", r.DownBelow, r.UpAbove)
		}
	default:
		return invalidf("rep: unknown mode %q", r.Mode)
	}
	return nil
}

func (r AlignmentRule) validate() error {
	where := fmt.Sprintf("alignment_rules[%s]", r.Name)
	if r.DebounceSeconds < 0 {
		return invalidf("%s: debounce_seconds must be non-negative", where)
	}
	switch r.Kind {
	case RuleLevel:
		if err := checkJoints(where, r.Joints, 2); err != nil {
			return err
		}
		if r.MaxHeightDifference <= 0 {
			return invalidf("%s: max_height_difference must be positive", where)
		}
	case RuleMaxAngle:
		if err := checkJoints(where, r.Joints, 3); err != nil {
			return err
		}
		if r.MaxAngle <= 0 || r.MaxAngle > 180 {
			return invalidf("%s: max_angle must be in (0, 180], got %f", where, r.MaxAngle)
		}
	case RuleVerticalDeviation:
		if err := checkJoints(where, r.Joints, 2); err != nil {
			return err
		}
		if r.MaxAngleDeviation <= 0 || r.MaxAngleDeviation > 90 {
			return invalidf("%s: max_angle_deviation must be in (0, 90], got %f", where, r.MaxAngleDeviation)
		}
	case RuleAngularVelocity:
		if err := checkJoints(where, r.Joints, 3); err != nil {
			return err
		}
		if r.MaxAngularVelocity <= 0 {
			return invalidf("%s: max_angular_velocity must be positive", where)
		}
	default:
		return invalidf("%s: unknown kind %q", where, r.Kind)
	}
	return nil
}

// Generic returns the fallback definition used when an exercise has no
// authored preset: the left shoulder angle with a permissive valid range.
func Generic(name string) *Definition {
	if name == "" {
		name = "Exercise"
	}
	return &Definition{
		ID:   "generic",
		Name: name,
		Rep: RepDefinition{
			Mode: ModeHysteresis,
			Angles: []pose.AngleSpec{
				{Name: "left_shoulder", A: pose.LeftElbow, B: pose.LeftShoulder, C: pose.LeftHip},
			},
			ValidRange:  Range{40, 140},
			ExitRange:   Range{0, 90},
			MinHoldTime: 0.15,
		},
	}
}
