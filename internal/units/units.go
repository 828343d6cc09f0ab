// Package units holds the conversions applied to raw engine readings before
// they enter a series, and the display units a report may ask for.
package units

import "strings"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid display units
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// NoObservation marks a sample for which nothing qualifying happened in the
// interval, such as a travel-time section no vehicle completed. It is kept
// positionally in a series but never weighted.
const NoObservation = -1.0

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
	return "mps, mph, kmph, kph"
}

// MPSToKMPH converts the engine's native m/s into km/h using the exact 18/5
// factor.
func MPSToKMPH(mps float64) float64 {
	return mps * 18 / 5
}

// FromKMPH converts a stored km/h value into the display unit. Sentinels pass
// through unchanged.
func FromKMPH(kmph float64, target string) float64 {
	if kmph == NoObservation {
		return kmph
	}
	switch target {
	case MPS:
		return kmph * 5 / 18
	case MPH:
		return kmph / 1.609344
	default:
		return kmph
	}
}

// TravelSpeed is the mean speed in km/h over a section of dist metres
// crossed in travelTime seconds, or NoObservation when no vehicle crossed.
func TravelSpeed(dist, travelTime float64) float64 {
	if travelTime == 0 {
		return NoObservation
	}
	return MPSToKMPH(dist / travelTime)
}

// FractionToPercent scales an occupancy fraction to a percentage.
func FractionToPercent(f float64) float64 {
	return f * 100
}

// SpeedOrNoObservation maps a zero mean speed, which the engine reports when
// no vehicle used the link, to NoObservation.
func SpeedOrNoObservation(kmph float64) float64 {
	if kmph == 0 {
		return NoObservation
	}
	return kmph
}

// losGrades are the level of service grades from best to worst.
const losGrades = "ABCDEF"

// LOSGrade converts a level of service letter into its ordinal, A=1 to F=6.
// A reply such as "LOS_C" is read by its last character.
func LOSGrade(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	i := strings.IndexByte(losGrades, strings.ToUpper(s[len(s)-1:])[0])
	if i < 0 {
		return 0, false
	}
	return float64(i + 1), true
}

// LOSLetter is the inverse of LOSGrade. Values outside 1..6, including
// NoObservation, have no letter.
func LOSLetter(v float64) string {
	i := int(v)
	if float64(i) != v || i < 1 || i > len(losGrades) {
		return ""
	}
	return losGrades[i-1 : i]
}
