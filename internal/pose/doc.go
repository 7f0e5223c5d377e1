// Package pose owns the per-frame body model consumed by the engine.
//
// Responsibilities: the joint vocabulary, per-joint observations from the
// external pose estimator, frame-level angle measurement, and joint
// visibility validation.
// Key types: JointName, JointObservation, Frame, Measurement, AngleSpec.
//
// Dependency rule: pose is a leaf package. It never depends on the
// repetition, alignment, or session layers, and performs no I/O.
package pose
