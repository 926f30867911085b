package noise

import "math"

// MaxDetail is the largest octave count Turbulence will sum.
const MaxDetail = 16

// Turbulence sums octaves of unsigned noise at p, each at twice the frequency
// and half the amplitude of the previous one.
//
// detail is the octave count beyond the first and is clamped to
// [0, MaxDetail]; NaN counts as 0. The sum is divided by the total amplitude
// so that the result stays within the range of a single sample. A fractional
// detail blends linearly between the floor and ceiling octave counts, which
// keeps the result continuous in detail.
func Turbulence[C Coordinate[C]](src Source, p C, detail float64) float64 {
	octaves := ClampDetail(detail)
	n := int(octaves)
	rmd := octaves - math.Floor(octaves)

	fscale := 1.0
	amp := 1.0
	sum := 0.0
	for i := 0; i <= n; i++ {
		t := SafeNoise(src, p.Scale(fscale))
		sum += t * amp
		amp *= 0.5
		fscale *= 2.0
	}

	if rmd == 0 {
		return normalize(sum, n)
	}

	t := SafeNoise(src, p.Scale(fscale))
	sum2 := sum + t*amp
	return (1.0-rmd)*normalize(sum, n) + rmd*normalize(sum2, n+1)
}

// Turbulence1 is Turbulence over a 1-D coordinate.
func Turbulence1(src Source, x, detail float64) float64 {
	return Turbulence(src, Float(x), detail)
}

// Turbulence2 is Turbulence over a 2-D coordinate.
func Turbulence2(src Source, x, y, detail float64) float64 {
	return Turbulence(src, Vec2{X: x, Y: y}, detail)
}

// Turbulence3 is Turbulence over a 3-D coordinate.
func Turbulence3(src Source, p Vec3, detail float64) float64 {
	return Turbulence(src, p, detail)
}

// Turbulence4 is Turbulence over a 4-D coordinate.
func Turbulence4(src Source, p Vec4, detail float64) float64 {
	return Turbulence(src, p, detail)
}

// ClampDetail returns the octave count Turbulence uses for detail: detail
// limited to [0, MaxDetail], with NaN mapped to 0.
func ClampDetail(detail float64) float64 {
	if !(detail > 0) {
		return 0
	}
	if detail > MaxDetail {
		return MaxDetail
	}
	return detail
}

// normalize divides an n+1 octave sum by 1 + 1/2 + ... + 1/2^n, written as
// 2^n / (2^(n+1) - 1). Scaling by 2^n first is exact, so the single
// rounding in the division cannot push a sum at the bound above 1.
func normalize(sum float64, n int) float64 {
	return sum * float64(int64(1)<<n) / float64(int64(1)<<(n+1)-1)
}
