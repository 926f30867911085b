package noise

import "math"

// Safe samples src and replaces an infinite result with the asymptote of
// kind. Any other value, NaN included, is returned unmodified.
func Safe(src Source, kind Kind, p Point) float64 {
	f := kind.sample(src, p)
	if math.IsInf(f, 0) {
		return kind.Asymptote()
	}
	return f
}

// SafeNoise samples unsigned noise at p. Infinite results become 0.5.
func SafeNoise[C Coordinate[C]](src Source, p C) float64 {
	return Safe(src, Unsigned, p.Point())
}

// SafeSignedNoise samples signed noise at p. Infinite results become 0.
func SafeSignedNoise[C Coordinate[C]](src Source, p C) float64 {
	return Safe(src, Signed, p.Point())
}
