package util

import (
	"fmt"
	"math"
)

// FormatValueFactor renders value with an SI prefix and unit, e.g.
// "6.306 A", "14.400 V", "87.500 mW".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue >= 1e-9:
		return fmt.Sprintf("%.3f n%s", value*1e9, unit)
	case absValue >= 1e-12:
		return fmt.Sprintf("%.3f p%s", value*1e12, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatSuns renders an effective irradiance value.
func FormatSuns(ee float64) string {
	return fmt.Sprintf("%.3g suns", ee)
}
