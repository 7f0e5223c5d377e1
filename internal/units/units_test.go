package units

import (
	"math"
	"testing"
)

func TestConvertAngle(t *testing.T) {
	tests := []struct {
		name     string
		deg      float64
		units    string
		expected float64
	}{
		{"180 deg to rad", 180.0, Radians, math.Pi},
		{"90 deg to rad", 90.0, Radians, math.Pi / 2},
		{"90 deg to deg", 90.0, Degrees, 90.0},
		{"unknown units default to deg", 45.0, "unknown", 45.0},
		{"0 deg to rad", 0.0, Radians, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertAngle(tt.deg, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertAngle(%f, %s) = %f, want %f", tt.deg, tt.units, result, tt.expected)
			}
		})
	}
}

func TestRadDegRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 12.5, 90, 179.9, 270} {
		if got := RadToDeg(DegToRad(deg)); math.Abs(got-deg) > 1e-9 {
			t.Errorf("RadToDeg(DegToRad(%f)) = %f", deg, got)
		}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"degrees", Degrees, true},
		{"radians", Radians, true},
		{"gradians", "grad", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   float64
	}{
		{1.23456, 2, 1.23},
		{1.235, 1, 1.2},
		{0.999, 2, 1.0},
		{-2.346, 2, -2.35},
		{7.5, -1, 7.5},
	}
	for _, tt := range tests {
		if got := Round(tt.v, tt.places); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Round(%f, %d) = %f, want %f", tt.v, tt.places, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(-0.5, 0, 1); got != 0 {
		t.Errorf("Clamp(-0.5) = %f, want 0", got)
	}
	if got := Clamp(1.5, 0, 1); got != 1 {
		t.Errorf("Clamp(1.5) = %f, want 1", got)
	}
	if got := Clamp(0.25, 0, 1); got != 0.25 {
		t.Errorf("Clamp(0.25) = %f, want 0.25", got)
	}
}
