package pose

import "time"

// JointObservation is one joint's measurement in one frame. Coordinates are
// normalised image coordinates (y grows downward); Z is optional depth.
type JointObservation struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility"` // Estimator confidence [0, 1]
}

// Point returns the 2D position of the observation.
func (o JointObservation) Point() Point {
	return Point{X: o.X, Y: o.Y}
}

// Frame maps joint names to their observations at a capture instant.
// A frame with no joints means the estimator detected no pose.
type Frame struct {
	Timestamp time.Time                      `json:"timestamp"`
	Joints    map[JointName]JointObservation `json:"joints"`
}

// HasPose reports whether the estimator produced any landmarks.
func (f Frame) HasPose() bool {
	return len(f.Joints) > 0
}

// Joint returns the observation for name and whether it is present.
func (f Frame) Joint(name JointName) (JointObservation, bool) {
	o, ok := f.Joints[name]
	return o, ok
}

// Measurement is an optional scalar. An invalid measurement means "no
// measurement this frame" and must never be read as zero.
type Measurement struct {
	Value float64
	Valid bool
}

// Unavailable is the zero Measurement.
var Unavailable = Measurement{}

// Measured wraps v as a valid Measurement.
func Measured(v float64) Measurement {
	return Measurement{Value: v, Valid: true}
}
