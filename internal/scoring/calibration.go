package scoring

import (
	"math"

	"PaperTriage/internal/domain"
)

const (
	MinAxis = 1
	MaxAxis = 5
)

// Calibration pulls axis values toward Baseline by Shrink.
type Calibration struct {
	Shrink   float64
	Baseline float64
}

// DefaultCalibration is shrink 0.6 toward 3.
func DefaultCalibration() Calibration {
	return Calibration{Shrink: 0.6, Baseline: 3}
}

// Axis maps v to round(baseline + (v-baseline)*shrink), rounding halves up,
// clamped to [1,5].
func (c Calibration) Axis(v int) int {
	x := c.Baseline + (float64(v)-c.Baseline)*c.Shrink
	return Clamp(int(math.Floor(x + 0.5)))
}

// Apply calibrates every axis. Total follows from the axes.
func (c Calibration) Apply(r domain.Rubric) domain.Rubric {
	return r.Map(c.Axis)
}

// Clamp bounds v to [1,5].
func Clamp(v int) int {
	return min(max(v, MinAxis), MaxAxis)
}

// ClampRubric bounds every axis to [1,5].
func ClampRubric(r domain.Rubric) domain.Rubric {
	return r.Map(Clamp)
}
