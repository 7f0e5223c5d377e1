// Package testutil provides shared test utilities and synthetic pose
// fixtures.
//
// Frames are built in normalised image coordinates (y grows downward)
// around an upright subject facing the camera, so the subject's left side
// appears at larger x.
package testutil

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/rehab.report/internal/pose"
	"github.com/banshee-data/rehab.report/internal/units"
)

// DefaultVisibility is the confidence assigned to every built joint.
const DefaultVisibility = 0.95

// Side selects a body side.
type Side int

const (
	Left Side = iota
	Right
)

const (
	upperArmLength = 0.15
	forearmLength  = 0.13
	thighLength    = 0.15
	torsoLength    = 0.30
	// elbowBend keeps the forearm slightly flexed so a built arm never
	// reads as hyperextended.
	elbowBend = 15.0
)

var standing = map[pose.JointName]pose.Point{
	pose.Nose:           {X: 0.50, Y: 0.15},
	pose.LeftEyeInner:   {X: 0.51, Y: 0.13},
	pose.LeftEye:        {X: 0.52, Y: 0.13},
	pose.LeftEyeOuter:   {X: 0.53, Y: 0.13},
	pose.RightEyeInner:  {X: 0.49, Y: 0.13},
	pose.RightEye:       {X: 0.48, Y: 0.13},
	pose.RightEyeOuter:  {X: 0.47, Y: 0.13},
	pose.LeftEar:        {X: 0.54, Y: 0.14},
	pose.RightEar:       {X: 0.46, Y: 0.14},
	pose.MouthLeft:      {X: 0.51, Y: 0.18},
	pose.MouthRight:     {X: 0.49, Y: 0.18},
	pose.LeftShoulder:   {X: 0.58, Y: 0.30},
	pose.RightShoulder:  {X: 0.42, Y: 0.30},
	pose.LeftHip:        {X: 0.58, Y: 0.60},
	pose.RightHip:       {X: 0.42, Y: 0.60},
	pose.LeftKnee:       {X: 0.58, Y: 0.75},
	pose.RightKnee:      {X: 0.42, Y: 0.75},
	pose.LeftAnkle:      {X: 0.58, Y: 0.90},
	pose.RightAnkle:     {X: 0.42, Y: 0.90},
	pose.LeftHeel:       {X: 0.58, Y: 0.92},
	pose.RightHeel:      {X: 0.42, Y: 0.92},
	pose.LeftFootIndex:  {X: 0.60, Y: 0.93},
	pose.RightFootIndex: {X: 0.40, Y: 0.93},
}

// FrameBuilder assembles a synthetic pose frame.
type FrameBuilder struct {
	ts     time.Time
	joints map[pose.JointName]pose.JointObservation
}

// Standing returns a builder for an upright subject with both arms at 10°
// of abduction.
func Standing(ts time.Time) *FrameBuilder {
	b := &FrameBuilder{ts: ts, joints: make(map[pose.JointName]pose.JointObservation, len(pose.Vocabulary))}
	for name, p := range standing {
		b.Joint(name, p.X, p.Y)
	}
	return b.ArmAngle(Left, 10).ArmAngle(Right, 10)
}

// Empty returns a frame at ts in which no pose was detected.
func Empty(ts time.Time) pose.Frame {
	return pose.Frame{Timestamp: ts}
}

// Joint places name at (x, y) with the default visibility.
func (b *FrameBuilder) Joint(name pose.JointName, x, y float64) *FrameBuilder {
	b.joints[name] = pose.JointObservation{X: x, Y: y, Visibility: DefaultVisibility}
	return b
}

func (b *FrameBuilder) point(name pose.JointName) pose.Point {
	return b.joints[name].Point()
}

// outward returns the rotation sign that swings a limb away from the
// body's midline on side.
func outward(side Side) float64 {
	if side == Left {
		return -1
	}
	return 1
}

// rotate turns v by deg degrees.
func rotate(v pose.Point, deg float64) pose.Point {
	r := units.DegToRad(deg)
	sin, cos := math.Sincos(r)
	return pose.Point{X: v.X*cos - v.Y*sin, Y: v.X*sin + v.Y*cos}
}

func direction(from, to pose.Point) pose.Point {
	dx, dy := to.X-from.X, to.Y-from.Y
	n := math.Hypot(dx, dy)
	return pose.Point{X: dx / n, Y: dy / n}
}

func offset(p, dir pose.Point, length float64) pose.Point {
	return pose.Point{X: p.X + dir.X*length, Y: p.Y + dir.Y*length}
}

// ArmAngle sets the elbow→shoulder→hip angle on side to deg and places
// the wrist with a slight elbow bend.
func (b *FrameBuilder) ArmAngle(side Side, deg float64) *FrameBuilder {
	shoulder, hip, elbow, wrist := pose.LeftShoulder, pose.LeftHip, pose.LeftElbow, pose.LeftWrist
	if side == Right {
		shoulder, hip, elbow, wrist = pose.RightShoulder, pose.RightHip, pose.RightElbow, pose.RightWrist
	}
	s := b.point(shoulder)
	down := direction(s, b.point(hip))
	sign := outward(side)

	e := offset(s, rotate(down, sign*deg), upperArmLength)
	w := offset(e, rotate(down, sign*(deg-elbowBend)), forearmLength)
	b.Joint(elbow, e.X, e.Y)
	return b.Joint(wrist, w.X, w.Y)
}

// Arms sets both arm angles to deg.
func (b *FrameBuilder) Arms(deg float64) *FrameBuilder {
	return b.ArmAngle(Left, deg).ArmAngle(Right, deg)
}

// KneeAngle sets the hip→knee→ankle angle on side to deg by moving the hip.
func (b *FrameBuilder) KneeAngle(side Side, deg float64) *FrameBuilder {
	hip, knee, ankle := pose.LeftHip, pose.LeftKnee, pose.LeftAnkle
	if side == Right {
		hip, knee, ankle = pose.RightHip, pose.RightKnee, pose.RightAnkle
	}
	k := b.point(knee)
	toAnkle := direction(k, b.point(ankle))
	h := offset(k, rotate(toAnkle, -outward(side)*deg), thighLength)
	return b.Joint(hip, h.X, h.Y)
}

// Lean tilts the left and right shoulders so that each shoulder→hip
// segment deviates deg from vertical.
func (b *FrameBuilder) Lean(deg float64) *FrameBuilder {
	up := rotate(pose.Point{X: 0, Y: -1}, deg)
	for _, pair := range [][2]pose.JointName{
		{pose.LeftShoulder, pose.LeftHip},
		{pose.RightShoulder, pose.RightHip},
	} {
		s := offset(b.point(pair[1]), up, torsoLength)
		b.Joint(pair[0], s.X, s.Y)
	}
	return b
}

// Lift moves name up the image by dy, leaving its attached joints alone.
func (b *FrameBuilder) Lift(name pose.JointName, dy float64) *FrameBuilder {
	o := b.joints[name]
	o.Y -= dy
	b.joints[name] = o
	return b
}

// Visibility sets the confidence of names to v.
func (b *FrameBuilder) Visibility(v float64, names ...pose.JointName) *FrameBuilder {
	for _, name := range names {
		if o, ok := b.joints[name]; ok {
			o.Visibility = v
			b.joints[name] = o
		}
	}
	return b
}

// Without removes names from the frame.
func (b *FrameBuilder) Without(names ...pose.JointName) *FrameBuilder {
	for _, name := range names {
		delete(b.joints, name)
	}
	return b
}

// Build returns the frame. The builder can keep being modified afterwards
// without affecting frames already built.
func (b *FrameBuilder) Build() pose.Frame {
	joints := make(map[pose.JointName]pose.JointObservation, len(b.joints))
	for k, v := range b.joints {
		joints[k] = v
	}
	return pose.Frame{Timestamp: b.ts, Joints: joints}
}

// Tick returns start advanced by i steps.
func Tick(start time.Time, i int, step time.Duration) time.Time {
	return start.Add(time.Duration(i) * step)
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
