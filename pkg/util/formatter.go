package util

import (
	"fmt"
	"math"
)

// FormatValueFactor prints value with an engineering prefix, 1.5e-3 A ->
// "1.500 mA".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case math.IsNaN(value):
		return fmt.Sprintf("NaN %s", unit)
	case absValue == 0:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e6:
		return fmt.Sprintf("%.3e %s", value, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
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

func FormatWavelength(wl float64) string {
	switch {
	case wl >= 1e-6:
		return fmt.Sprintf("%7.3f um", wl*1e6)
	default:
		return fmt.Sprintf("%7.1f nm", wl*1e9)
	}
}

// FormatCurrentDensity prints A/m^2 as mA/cm^2.
func FormatCurrentDensity(j float64) string {
	return fmt.Sprintf("%8.3f mA/cm2", j/10)
}

func FormatPercent(value float64) string {
	return fmt.Sprintf("%6.2f %%", value*100)
}

func FormatMagnitude(value float64) string {
	if math.Abs(value) >= 1000 || (math.Abs(value) < 0.001 && value != 0) {
		return fmt.Sprintf("%8.2e", value) // "1.00e+03" or "5.43e-05"
	}
	return fmt.Sprintf("%8.3g", value) // "   0.732"
}
