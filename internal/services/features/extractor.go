package features

import (
	"math"

	"WindowEdge/internal/domain/models"
)

// ComputeLogReturns computes log returns r_t = ln(P_t / P_{t-1}).
// It returns a slice of length len(points)-1, or nil if insufficient data.
func ComputeLogReturns(points []models.PricePoint) []float64 {
	if len(points) < 2 {
		return nil
	}
	out := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		cur := points[i].Price
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// SampleStdDev returns the n-1 standard deviation, or 0 with fewer than two values.
func SampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for _, x := range xs {
		sum += x
		sum2 += x * x
	}
	n := float64(len(xs))
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// LogPriceSlope fits ln(price) against minutes since the first point by least squares
// over the last n points and returns the slope per minute.
func LogPriceSlope(points []models.PricePoint, n int) (float64, bool) {
	if n > len(points) {
		n = len(points)
	}
	if n < 3 {
		return 0, false
	}
	window := points[len(points)-n:]
	t0 := window[0].Timestamp

	var sx, sy, sxx, sxy float64
	for _, p := range window {
		if p.Price <= 0 {
			return 0, false
		}
		x := p.Timestamp.Sub(t0).Minutes()
		y := math.Log(p.Price)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	k := float64(n)
	den := k*sxx - sx*sx
	if den == 0 {
		return 0, false
	}
	return (k*sxy - sx*sy) / den, true
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
