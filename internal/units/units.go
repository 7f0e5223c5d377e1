// Package units provides shared constants and conversions for angle and
// duration units reported by the engine.
package units

import "math"

// Unit constants
const (
	Degrees = "deg"
	Radians = "rad"
)

// ValidUnits contains all valid angle unit values
var ValidUnits = []string{Degrees, Radians}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "deg, rad"
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// ConvertAngle converts an angle in degrees to the target units.
// Angles are computed and stored in degrees.
func ConvertAngle(deg float64, targetUnits string) float64 {
	switch targetUnits {
	case Radians:
		return DegToRad(deg)
	default:
		return deg // default to degrees if unknown unit
	}
}

// Round rounds v to the given number of decimal places. Summaries and
// persisted statistics are reported at two places.
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
