// Package stats holds the small numeric helpers shared by the engines.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median returns the median of xs (mean of the middle two for even lengths).
// xs is not modified.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// StdDev returns the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// Fit is an ordinary least squares line y = Intercept + Slope*x over x = 0..n-1.
type Fit struct {
	Slope     float64
	Intercept float64
	RMSE      float64
}

// At evaluates the fitted line at index x.
func (f Fit) At(x float64) float64 { return f.Intercept + f.Slope*x }

// LinearFit regresses ys on their index. With fewer than two points the slope
// is zero and the intercept is the only value (or 0).
func LinearFit(ys []float64) Fit {
	n := float64(len(ys))
	if len(ys) == 0 {
		return Fit{}
	}
	if len(ys) == 1 {
		return Fit{Intercept: ys[0]}
	}
	xMean := (n - 1) / 2
	yMean := Mean(ys)
	var sxy, sxx float64
	for i, y := range ys {
		dx := float64(i) - xMean
		sxy += dx * (y - yMean)
		sxx += dx * dx
	}
	f := Fit{Slope: sxy / sxx}
	f.Intercept = yMean - f.Slope*xMean

	var sse float64
	for i, y := range ys {
		r := y - f.At(float64(i))
		sse += r * r
	}
	f.RMSE = math.Sqrt(sse / n)
	return f
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Ratio returns num/den and false when den is zero, so callers can drop
// degenerate statistics instead of dividing by zero.
func Ratio(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	return num / den, true
}
