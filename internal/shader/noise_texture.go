// Package shader provides texture nodes built on the noise package.
package shader

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/MeKo-Tech/turbulence/internal/noise"
)

// ErrInvalidNode is wrapped by every NoiseTexture validation error.
var ErrInvalidNode = errors.New("invalid noise texture")

// Fixed offsets that decorrelate the distortion and color channels from Fac.
var (
	distortOffsetX = noise.Vec4{X: 13.5, Y: 13.5, Z: 13.5, W: 13.5}
	distortOffsetY = noise.Vec4{X: -47.2, Y: 21.1, Z: 3.9, W: -8.6}
	distortOffsetZ = noise.Vec4{X: 9.3, Y: -62.8, Z: 31.4, W: 17.2}

	colorOffsetG = noise.Vec4{X: 19.31, Y: 7.13, Z: -3.77, W: 11.9}
	colorOffsetB = noise.Vec4{X: -28.46, Y: 33.02, Z: 14.58, W: -5.3}
)

// Color is a linear RGB triple in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Output is the result of evaluating a NoiseTexture at one point.
type Output struct {
	Fac   float64 `json:"fac"`
	Color Color   `json:"color"`
}

// NoiseTexture evaluates fractal noise at a shading point.
//
// Points are always passed as Vec4; Dimensions selects how many of their
// components reach the noise source (1: X, 2: X/Y, 3: X/Y/Z, 4: all).
type NoiseTexture struct {
	Source     noise.Source
	Dimensions int
	Scale      float64
	Detail     float64
	Distortion float64
}

// DefaultNoiseTexture returns a 3-D node with scale 5 and detail 2.
func DefaultNoiseTexture(src noise.Source) NoiseTexture {
	return NoiseTexture{
		Source:     src,
		Dimensions: 3,
		Scale:      5.0,
		Detail:     2.0,
	}
}

// Validate reports configuration errors. Detail is never rejected since
// the turbulence engine clamps it.
func (n NoiseTexture) Validate() error {
	if n.Source == nil {
		return fmt.Errorf("%w: nil noise source", ErrInvalidNode)
	}
	if n.Dimensions < 1 || n.Dimensions > 4 {
		return fmt.Errorf("%w: dimensions must be within [1,4], got %d", ErrInvalidNode, n.Dimensions)
	}
	if !(n.Scale > 0) || math.IsInf(n.Scale, 0) {
		return fmt.Errorf("%w: scale must be positive and finite, got %v", ErrInvalidNode, n.Scale)
	}
	if !(n.Distortion >= 0) || math.IsInf(n.Distortion, 0) {
		return fmt.Errorf("%w: distortion must be non-negative and finite, got %v", ErrInvalidNode, n.Distortion)
	}
	return nil
}

// Evaluate returns Fac and Color at p.
func (n NoiseTexture) Evaluate(p noise.Vec4) Output {
	p = n.prepare(p)
	fac := n.turbulence(p, n.Detail)
	return Output{
		Fac: fac,
		Color: Color{
			R: fac,
			G: n.turbulence(p.Add(colorOffsetG), n.Detail),
			B: n.turbulence(p.Add(colorOffsetB), n.Detail),
		},
	}
}

// Fac returns only the scalar output at p, with detail overriding the node
// detail.
func (n NoiseTexture) Fac(p noise.Vec4, detail float64) float64 {
	return n.turbulence(n.prepare(p), detail)
}

// Params describes the node as flat key/value pairs.
func (n NoiseTexture) Params() map[string]string {
	return map[string]string{
		"noise_dimensions": strconv.Itoa(n.Dimensions),
		"noise_scale":      strconv.FormatFloat(n.Scale, 'g', -1, 64),
		"noise_detail":     strconv.FormatFloat(n.Detail, 'g', -1, 64),
		"noise_distortion": strconv.FormatFloat(n.Distortion, 'g', -1, 64),
	}
}

func (n NoiseTexture) prepare(p noise.Vec4) noise.Vec4 {
	p = n.project(p).Scale(n.Scale)
	if n.Distortion != 0 {
		p = p.Add(noise.Vec4{
			X: n.signed(p.Add(distortOffsetX)),
			Y: n.signed(p.Add(distortOffsetY)),
			Z: n.signed(p.Add(distortOffsetZ)),
			W: n.signed(p),
		}.Scale(n.Distortion))
		p = n.project(p)
	}
	return p
}

// project zeroes the components the node does not use, so distortion and
// channel offsets cannot leak into them.
func (n NoiseTexture) project(p noise.Vec4) noise.Vec4 {
	switch n.Dimensions {
	case 1:
		return noise.Vec4{X: p.X}
	case 2:
		return noise.Vec4{X: p.X, Y: p.Y}
	case 3:
		return noise.Vec4{X: p.X, Y: p.Y, Z: p.Z}
	default:
		return p
	}
}

func (n NoiseTexture) turbulence(p noise.Vec4, detail float64) float64 {
	switch n.Dimensions {
	case 1:
		return noise.Turbulence(n.Source, noise.Float(p.X), detail)
	case 2:
		return noise.Turbulence(n.Source, noise.Vec2{X: p.X, Y: p.Y}, detail)
	case 3:
		return noise.Turbulence(n.Source, p.XYZ(), detail)
	default:
		return noise.Turbulence(n.Source, p, detail)
	}
}

func (n NoiseTexture) signed(p noise.Vec4) float64 {
	switch n.Dimensions {
	case 1:
		return noise.SafeSignedNoise(n.Source, noise.Float(p.X))
	case 2:
		return noise.SafeSignedNoise(n.Source, noise.Vec2{X: p.X, Y: p.Y})
	case 3:
		return noise.SafeSignedNoise(n.Source, p.XYZ())
	default:
		return noise.SafeSignedNoise(n.Source, p)
	}
}
