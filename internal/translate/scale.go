package translate

import (
	"math"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
)

const epsilon = 1e-9

// ScaleToHost maps a vendor value in [Min, Max] onto 1..hostMax, treating both ends as inclusive steps.
func ScaleToHost(raw float64, r capability.Range, hostMax float64) float64 {
	states := r.Max - r.Min + 1
	if states <= 0 {
		return hostMax
	}
	v := math.Round((raw - r.Min + 1) * hostMax / states)
	return clamp(v, 0, hostMax)
}

// ScaleFromHost is the inverse of ScaleToHost, rounding up into the vendor range.
func ScaleFromHost(v float64, r capability.Range, hostMax float64) float64 {
	if hostMax <= 0 {
		return r.Min
	}
	states := r.Max - r.Min + 1
	raw := math.Ceil(v*states/hostMax + r.Min - 1 - epsilon)
	return snapUp(clamp(raw, r.Min, r.Max), r)
}

// ClampToRange keeps a host value inside the vendor range, snapped to the nearest precision step.
func ClampToRange(v float64, r capability.Range) float64 {
	v = clamp(v, r.Min, r.Max)
	if r.Precision > 0 {
		v = r.Min + math.Round((v-r.Min)/r.Precision)*r.Precision
	}
	return clamp(v, r.Min, r.Max)
}

func snapUp(v float64, r capability.Range) float64 {
	if r.Precision <= 0 {
		return v
	}
	steps := math.Ceil((v-r.Min)/r.Precision - epsilon)
	return clamp(r.Min+steps*r.Precision, r.Min, r.Max)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LevelToPercentage maps ordinal k of n onto 1..100.
func LevelToPercentage(k, n int) int {
	if n <= 0 || k <= 0 {
		return 0
	}
	if k > n {
		k = n
	}
	return k * 100 / n
}

// PercentageToLevel is the inverse of LevelToPercentage; 0 means off.
func PercentageToLevel(p, n int) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p > 100 {
		p = 100
	}
	level := (p*n + 99) / 100
	if level > n {
		level = n
	}
	return level
}

func PackRGB(r, g, b int) int {
	return (r&0xff)<<16 | (g&0xff)<<8 | b&0xff
}

func UnpackRGB(v int) (r, g, b int) {
	return (v >> 16) & 0xff, (v >> 8) & 0xff, v & 0xff
}

func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
