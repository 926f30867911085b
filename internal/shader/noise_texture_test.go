package shader

import (
	"errors"
	"math"
	"testing"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type constSource float64

func (c constSource) Unsigned(noise.Point) float64 { return float64(c) }
func (c constSource) Signed(noise.Point) float64   { return float64(c)*2 - 1 }

// dimSource reports which point components were non-zero.
type dimSource struct{ t *testing.T }

func (d dimSource) Unsigned(p noise.Point) float64 {
	if p.Dim < 4 && p.W != 0 {
		d.t.Errorf("W leaked into %d-D point: %+v", p.Dim, p)
	}
	if p.Dim < 3 && p.Pos.Z != 0 {
		d.t.Errorf("Z leaked into %d-D point: %+v", p.Dim, p)
	}
	if p.Dim < 2 && p.Pos.Y != 0 {
		d.t.Errorf("Y leaked into %d-D point: %+v", p.Dim, p)
	}
	return 0.5
}

func (d dimSource) Signed(p noise.Point) float64 { return d.Unsigned(p) - 0.5 }

func TestValidate(t *testing.T) {
	valid := DefaultNoiseTexture(noise.NewPerlin(1))
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*NoiseTexture)
	}{
		{"nil source", func(n *NoiseTexture) { n.Source = nil }},
		{"zero dimensions", func(n *NoiseTexture) { n.Dimensions = 0 }},
		{"five dimensions", func(n *NoiseTexture) { n.Dimensions = 5 }},
		{"zero scale", func(n *NoiseTexture) { n.Scale = 0 }},
		{"nan scale", func(n *NoiseTexture) { n.Scale = math.NaN() }},
		{"inf scale", func(n *NoiseTexture) { n.Scale = math.Inf(1) }},
		{"negative distortion", func(n *NoiseTexture) { n.Distortion = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			err := n.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidNode))
		})
	}

	huge := valid
	huge.Detail = 1e6
	assert.NoError(t, huge.Validate(), "detail is clamped, not rejected")
}

func TestEvaluateConstantSource(t *testing.T) {
	for dims := 1; dims <= 4; dims++ {
		n := NoiseTexture{Source: constSource(0.5), Dimensions: dims, Scale: 3, Detail: 3}
		out := n.Evaluate(noise.Vec4{X: 1, Y: 2, Z: 3, W: 4})
		assert.Equal(t, 0.5, out.Fac)
		assert.Equal(t, Color{R: 0.5, G: 0.5, B: 0.5}, out.Color)
	}
}

func TestEvaluateMatchesTurbulence(t *testing.T) {
	src := noise.NewPerlin(21)
	p := noise.Vec4{X: 0.4, Y: -1.3, Z: 2.2, W: 0.7}
	n := NoiseTexture{Source: src, Dimensions: 3, Scale: 2.5, Detail: 4.25}

	want := noise.Turbulence(src, p.XYZ().Scale(2.5), 4.25)
	assert.Equal(t, want, n.Evaluate(p).Fac)
	assert.Equal(t, want, n.Evaluate(p).Color.R)
	assert.Equal(t, want, n.Fac(p, 4.25))
}

func TestEvaluateUsesOnlySelectedDimensions(t *testing.T) {
	for dims := 1; dims <= 4; dims++ {
		n := NoiseTexture{Source: dimSource{t: t}, Dimensions: dims, Scale: 1.5, Detail: 2.5, Distortion: 0.8}
		n.Evaluate(noise.Vec4{X: 1, Y: 2, Z: 3, W: 4})
	}
}

func TestEvaluateBoundedWithDistortion(t *testing.T) {
	n := NoiseTexture{Source: noise.NewSimplex(4), Dimensions: 4, Scale: 4, Detail: 6.5, Distortion: 2}

	for i := 0; i < 200; i++ {
		f := float64(i) * 0.037
		out := n.Evaluate(noise.Vec4{X: f, Y: 1 - f, Z: f * f, W: 0.2})
		for _, v := range []float64{out.Fac, out.Color.R, out.Color.G, out.Color.B} {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestDistortionChangesOutput(t *testing.T) {
	src := noise.NewPerlin(9)
	plain := NoiseTexture{Source: src, Dimensions: 2, Scale: 3, Detail: 2}
	warped := plain
	warped.Distortion = 1.5

	differ := 0
	for i := 0; i < 50; i++ {
		p := noise.Vec4{X: float64(i) * 0.11, Y: 0.3}
		if plain.Evaluate(p).Fac != warped.Evaluate(p).Fac {
			differ++
		}
	}
	assert.Greater(t, differ, 40)
}

func TestParams(t *testing.T) {
	n := NoiseTexture{Source: constSource(0.5), Dimensions: 2, Scale: 5, Detail: 2.5, Distortion: 0.25}
	assert.Equal(t, map[string]string{
		"noise_dimensions": "2",
		"noise_scale":      "5",
		"noise_detail":     "2.5",
		"noise_distortion": "0.25",
	}, n.Params())
}
