package pose

import (
	"math"

	"github.com/banshee-data/rehab.report/internal/units"
)

// Point is a 2D position in image coordinates.
type Point struct {
	X float64
	Y float64
}

// AngleSpec names a three-joint angle with its vertex at B, e.g. the
// shoulder angle elbow→shoulder→hip.
type AngleSpec struct {
	Name string    `json:"name" toml:"name"`
	A    JointName `json:"a" toml:"a"`
	B    JointName `json:"b" toml:"b"` // vertex
	C    JointName `json:"c" toml:"c"`
}

// Joints returns the three joints of the spec in order.
func (s AngleSpec) Joints() []JointName {
	return []JointName{s.A, s.B, s.C}
}

// ComputeAngle returns the interior angle at vertex b in degrees. The raw
// difference of the two arctangents is folded to 360-angle when it exceeds
// 180, so the result is in [0, 180] and symmetric in a and c.
func ComputeAngle(a, b, c Point) float64 {
	angle := math.Abs(units.RadToDeg(
		math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X),
	))
	if angle > 180 {
		angle = 360 - angle
	}
	return angle
}

// Angle measures spec in the frame. The result is Unavailable when any of
// the three joints is absent.
func (f Frame) Angle(spec AngleSpec) Measurement {
	a, okA := f.Joints[spec.A]
	b, okB := f.Joints[spec.B]
	c, okC := f.Joints[spec.C]
	if !okA || !okB || !okC {
		return Unavailable
	}
	return Measured(ComputeAngle(a.Point(), b.Point(), c.Point()))
}

// VerticalDeviation returns the angle in degrees between the segment
// upper→lower and the image vertical. Unavailable when either joint is absent.
func (f Frame) VerticalDeviation(upper, lower JointName) Measurement {
	u, okU := f.Joints[upper]
	l, okL := f.Joints[lower]
	if !okU || !okL {
		return Unavailable
	}
	dx := math.Abs(l.X - u.X)
	dy := math.Abs(l.Y - u.Y)
	if dx == 0 && dy == 0 {
		return Unavailable
	}
	return Measured(units.RadToDeg(math.Atan2(dx, dy)))
}

// HeightDifference returns |y(a) - y(b)|. Unavailable when either joint is absent.
func (f Frame) HeightDifference(a, b JointName) Measurement {
	ja, okA := f.Joints[a]
	jb, okB := f.Joints[b]
	if !okA || !okB {
		return Unavailable
	}
	return Measured(math.Abs(ja.Y - jb.Y))
}
