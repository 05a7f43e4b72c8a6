package alerting

import "github.com/cityops/iot-city-monitoring/pkg/types"

// Classify checks a measured value against an optional min and max bound.
// It reports whether a bound was crossed, which bound triggered, and the
// severity of the crossing. Values exactly on a bound do not cross it.
//
// Severity for values above max scales with the relative overshoot:
// more than 50% above is CRITICAL, more than 25% HIGH, more than 10%
// MEDIUM and anything less LOW. Values below min are always MEDIUM.
func Classify(value float64, min, max *float64) (bool, float64, string) {
	if max != nil && value > *max {
		if *max == 0 {
			return true, 0, types.AlertSeverityCritical
		}

		pct := (value - *max) / *max * 100

		if pct > 50 {
			return true, *max, types.AlertSeverityCritical
		}
		if pct > 25 {
			return true, *max, types.AlertSeverityHigh
		}
		if pct > 10 {
			return true, *max, types.AlertSeverityMedium
		}

		return true, *max, types.AlertSeverityLow
	}

	if min != nil && value < *min {
		return true, *min, types.AlertSeverityMedium
	}

	return false, 0, ""
}
