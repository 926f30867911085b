// Package analysis summarizes sampled noise values.
package analysis

import (
	"fmt"
	"sort"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a set of samples.
type Summary struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Median float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d min=%.6f max=%.6f mean=%.6f stddev=%.6f median=%.6f",
		s.Count, s.Min, s.Max, s.Mean, s.StdDev, s.Median)
}

// Summarize computes a Summary. An empty input yields the zero Summary.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return Summary{
		Count:  len(values),
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
}

// SampleGrid evaluates node Fac on an n×n grid covering [origin, origin+span]
// in X and Y. Z and W are taken from origin.
func SampleGrid(node shader.NoiseTexture, origin noise.Vec4, span float64, n int) []float64 {
	if n <= 0 {
		return nil
	}

	step := 0.0
	if n > 1 {
		step = span / float64(n-1)
	}

	values := make([]float64, 0, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			p := origin
			p.X += float64(i) * step
			p.Y += float64(j) * step
			values = append(values, node.Fac(p, node.Detail))
		}
	}
	return values
}
