package pose

// VisibilityProfile is a named visibility threshold. Continuous tracking is
// lenient so brief occlusions do not pause a session; reference capture is
// strict because a single frame becomes a template.
type VisibilityProfile struct {
	Name      string
	Threshold float64
}

var (
	// LiveTracking is the lenient profile applied to every session frame.
	LiveTracking = VisibilityProfile{Name: "live", Threshold: 0.35}
	// ReferenceCapture is the strict profile for physician demonstrations.
	ReferenceCapture = VisibilityProfile{Name: "capture", Threshold: 0.5}
)

// Validate runs ValidateVisibility with the profile's threshold.
func (p VisibilityProfile) Validate(f Frame, required []JointName) (bool, []JointName) {
	return ValidateVisibility(f, required, p.Threshold)
}

// ValidateVisibility checks that every required joint is present with
// visibility at or above threshold. It returns the joints that are missing
// or below threshold, in the order they were required.
func ValidateVisibility(f Frame, required []JointName, threshold float64) (bool, []JointName) {
	var missing []JointName
	for _, name := range required {
		o, ok := f.Joints[name]
		if !ok || o.Visibility < threshold {
			missing = append(missing, name)
		}
	}
	return len(missing) == 0, missing
}
