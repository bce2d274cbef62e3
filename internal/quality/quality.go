// Package quality gates enrollment frames on sharpness, brightness and
// contrast before they are allowed to contribute to an identity embedding.
// A rejected frame is a normal per-frame outcome, not an error.
package quality

import "math"

// Metric names, reported as machine-readable rejection reasons.
const (
	MetricBlur       = "blur"
	MetricBrightness = "brightness"
	MetricContrast   = "contrast"
)

// Thresholds configure the assessor. Blur is the variance of the Laplacian
// (higher is sharper), brightness the mean luminance in [0, 255], contrast
// the luminance standard deviation.
type Thresholds struct {
	BlurMin       float64
	BrightnessMin float64
	BrightnessMax float64
	ContrastMin   float64
}

// DefaultThresholds work for typical phone-camera pet photos.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlurMin:       100,
		BrightnessMin: 40,
		BrightnessMax: 220,
		ContrastMin:   20,
	}
}

// Assessment is the full measurement of one frame. When Accepted is false,
// FailedMetric names the first metric that rejected it, in blur, brightness,
// contrast order.
type Assessment struct {
	Accepted     bool    `json:"accepted"`
	FailedMetric string  `json:"failed_metric,omitempty"`
	Blur         float64 `json:"blur"`
	Brightness   float64 `json:"brightness"`
	Contrast     float64 `json:"contrast"`
}

// Assessor measures frames against fixed thresholds.
type Assessor struct {
	thresholds Thresholds
}

// NewAssessor builds an assessor with the given thresholds.
func NewAssessor(t Thresholds) *Assessor {
	return &Assessor{thresholds: t}
}

// Assess measures a grayscale luminance plane. Deterministic: the same plane
// always yields the same assessment.
func (a *Assessor) Assess(plane [][]float64) Assessment {
	out := Assessment{
		Blur:       laplacianVariance(plane),
		Brightness: mean(plane),
	}
	out.Contrast = stddev(plane, out.Brightness)

	switch {
	case out.Blur < a.thresholds.BlurMin:
		out.FailedMetric = MetricBlur
	case out.Brightness < a.thresholds.BrightnessMin || out.Brightness > a.thresholds.BrightnessMax:
		out.FailedMetric = MetricBrightness
	case out.Contrast < a.thresholds.ContrastMin:
		out.FailedMetric = MetricContrast
	default:
		out.Accepted = true
	}
	return out
}

// laplacianVariance measures sharpness as the variance of the 4-neighbor
// Laplacian over the interior pixels. Blurry frames have flat gradients and
// score near zero.
func laplacianVariance(plane [][]float64) float64 {
	h := len(plane)
	if h < 3 {
		return 0
	}
	w := len(plane[0])
	if w < 3 {
		return 0
	}

	n := (h - 2) * (w - 2)
	values := make([]float64, 0, n)
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := plane[y-1][x] + plane[y+1][x] + plane[y][x-1] + plane[y][x+1] - 4*plane[y][x]
			values = append(values, lap)
			sum += lap
		}
	}

	m := sum / float64(n)
	var variance float64
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return variance / float64(n)
}

func mean(plane [][]float64) float64 {
	var sum float64
	var n int
	for _, row := range plane {
		for _, v := range row {
			sum += v
		}
		n += len(row)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func stddev(plane [][]float64, mean float64) float64 {
	var sum float64
	var n int
	for _, row := range plane {
		for _, v := range row {
			d := v - mean
			sum += d * d
		}
		n += len(row)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
