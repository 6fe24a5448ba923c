// Package units provides shared constants and conversions for angular velocity units
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit constants
const (
	RadPerSec = "rad/s"
	DegPerSec = "deg/s"
	RPM       = "rpm"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{RadPerSec, DegPerSec, RPM}

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
	return strings.Join(ValidUnits, ", ")
}

// perRadPerSec is how many of each unit make up one rad/s
var perRadPerSec = map[string]float64{
	RadPerSec: 1,
	DegPerSec: 180 / math.Pi,
	RPM:       60 / (2 * math.Pi),
}

// FromRadPerSec converts an angular velocity in rad/s to the target units.
// Unknown units are returned unchanged.
func FromRadPerSec(v float64, targetUnits string) float64 {
	if f, ok := perRadPerSec[targetUnits]; ok {
		return v * f
	}
	return v
}

// ToRadPerSec converts an angular velocity in the given units to rad/s.
// Unknown units are returned unchanged.
func ToRadPerSec(v float64, fromUnits string) float64 {
	if f, ok := perRadPerSec[fromUnits]; ok {
		return v / f
	}
	return v
}

// Convert converts v between two units. Both must be valid.
func Convert(v float64, from, to string) (float64, error) {
	if !IsValid(from) {
		return 0, fmt.Errorf("invalid units %q: must be one of %s", from, GetValidUnitsString())
	}
	if !IsValid(to) {
		return 0, fmt.Errorf("invalid units %q: must be one of %s", to, GetValidUnitsString())
	}
	if from == to {
		return v, nil
	}
	return FromRadPerSec(ToRadPerSec(v, from), to), nil
}
