package noise

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcSource adapts plain functions to Source and records every Point it
// receives.
type funcSource struct {
	unsigned func(Point) float64
	signed   func(Point) float64

	mu     sync.Mutex
	points []Point
}

func (f *funcSource) record(p Point) {
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

func (f *funcSource) Unsigned(p Point) float64 {
	f.record(p)
	return f.unsigned(p)
}

func (f *funcSource) Signed(p Point) float64 {
	f.record(p)
	return f.signed(p)
}

func constant(v float64) *funcSource {
	fn := func(Point) float64 { return v }
	return &funcSource{unsigned: fn, signed: fn}
}

func TestSafeSubstitutesInfinity(t *testing.T) {
	for _, inf := range []float64{math.Inf(1), math.Inf(-1)} {
		src := constant(inf)

		assert.Equal(t, 0.5, SafeNoise(src, Float(1.5)))
		assert.Equal(t, 0.5, SafeNoise(src, Vec2{X: 1, Y: 2}))
		assert.Equal(t, 0.5, SafeNoise(src, Vec3{X: 1, Y: 2, Z: 3}))
		assert.Equal(t, 0.5, SafeNoise(src, Vec4{X: 1, Y: 2, Z: 3, W: 4}))

		assert.Equal(t, 0.0, SafeSignedNoise(src, Float(1.5)))
		assert.Equal(t, 0.0, SafeSignedNoise(src, Vec2{X: 1, Y: 2}))
		assert.Equal(t, 0.0, SafeSignedNoise(src, Vec3{X: 1, Y: 2, Z: 3}))
		assert.Equal(t, 0.0, SafeSignedNoise(src, Vec4{X: 1, Y: 2, Z: 3, W: 4}))
	}
}

func TestSafePassesFiniteValues(t *testing.T) {
	src := &funcSource{
		unsigned: func(p Point) float64 { return 0.25 },
		signed:   func(p Point) float64 { return -0.75 },
	}

	assert.Equal(t, 0.25, SafeNoise(src, Vec3{X: 1e9, Y: -1e9, Z: 0}))
	assert.Equal(t, -0.75, SafeSignedNoise(src, Vec3{X: 1e9, Y: -1e9, Z: 0}))
	assert.Equal(t, 0.25, Safe(src, Unsigned, Point{Dim: 1}))
	assert.Equal(t, -0.75, Safe(src, Signed, Point{Dim: 1}))
}

func TestSafeDoesNotReplaceNaN(t *testing.T) {
	src := constant(math.NaN())

	assert.True(t, math.IsNaN(SafeNoise(src, Vec2{X: 1, Y: 1})))
	assert.True(t, math.IsNaN(SafeSignedNoise(src, Vec2{X: 1, Y: 1})))
}

func TestCoordinatePoints(t *testing.T) {
	tests := []struct {
		name string
		got  Point
		want Point
	}{
		{"float", Float(2).Point(), Point{Dim: 1, Pos: Vec3{X: 2}}},
		{"vec2", Vec2{X: 1, Y: 2}.Point(), Point{Dim: 2, Pos: Vec3{X: 1, Y: 2}}},
		{"vec3", Vec3{X: 1, Y: 2, Z: 3}.Point(), Point{Dim: 3, Pos: Vec3{X: 1, Y: 2, Z: 3}}},
		{"vec4", Vec4{X: 1, Y: 2, Z: 3, W: 4}.Point(), Point{Dim: 4, Pos: Vec3{X: 1, Y: 2, Z: 3}, W: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
			assert.Equal(t, tt.want.Dim, tt.got.Dim)
		})
	}
}

func TestVec4ReachesSourceAsPositionAndW(t *testing.T) {
	src := constant(0.3)

	SafeNoise(src, Vec4{X: 1, Y: 2, Z: 3, W: 4})

	require.Len(t, src.points, 1)
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, src.points[0].Pos)
	assert.Equal(t, 4.0, src.points[0].W)
	assert.Equal(t, 4, src.points[0].Dim)
}

func TestKindAsymptote(t *testing.T) {
	assert.Equal(t, 0.5, Unsigned.Asymptote())
	assert.Equal(t, 0.0, Signed.Asymptote())
	assert.Equal(t, "unsigned", Unsigned.String())
	assert.Equal(t, "signed", Signed.String())
}
