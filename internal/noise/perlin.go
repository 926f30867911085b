package noise

import (
	"math"

	"github.com/aquilax/go-perlin"
)

// Offsets applied per integer step of W so that neighbouring 3-D slices are
// decorrelated.
const (
	perlinSliceX = 17.31
	perlinSliceY = 31.79
	perlinSliceZ = 47.23
)

// perlinLimit bounds the coordinates the generator can place on its integer
// lattice. Beyond it the lattice index overflows and the output is garbage.
const perlinLimit = 1 << 31

// Perlin is a lattice-gradient Source. The generator only has 1 to 3
// dimensional variants, so 4-D points blend the two 3-D slices around W.
type Perlin struct {
	p *perlin.Perlin
}

// NewPerlin returns a single-octave Perlin source. Octave summation is left
// to Turbulence.
func NewPerlin(seed int64) *Perlin {
	return &Perlin{p: perlin.NewPerlin(2.0, 2.0, 1, seed)}
}

// Signed returns noise in roughly [-1,1]. Points outside the lattice range
// diverge to +Inf. NaN coordinates yield NaN.
func (s *Perlin) Signed(pt Point) float64 {
	var v float64
	switch pt.Dim {
	case 1:
		if !inLattice(pt.Pos.X) {
			return outOfLattice(pt.Pos.X)
		}
		v = s.p.Noise1D(pt.Pos.X)
	case 2:
		if !inLattice(pt.Pos.X, pt.Pos.Y) {
			return outOfLattice(pt.Pos.X, pt.Pos.Y)
		}
		v = s.p.Noise2D(pt.Pos.X, pt.Pos.Y)
	case 3:
		if !inLattice(pt.Pos.X, pt.Pos.Y, pt.Pos.Z) {
			return outOfLattice(pt.Pos.X, pt.Pos.Y, pt.Pos.Z)
		}
		v = s.p.Noise3D(pt.Pos.X, pt.Pos.Y, pt.Pos.Z)
	default:
		v = s.noise4D(pt.Pos, pt.W)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.Inf(1)
	}
	return v
}

// Unsigned remaps Signed to roughly [0,1].
func (s *Perlin) Unsigned(pt Point) float64 {
	return 0.5 + 0.5*s.Signed(pt)
}

func (s *Perlin) noise4D(p Vec3, w float64) float64 {
	if !inLattice(p.X, p.Y, p.Z, w) {
		return outOfLattice(p.X, p.Y, p.Z, w)
	}
	w0 := math.Floor(w)
	f := w - w0
	f = f * f * (3 - 2*f)

	a := s.slice(p, w0)
	if f == 0 {
		return a
	}
	b := s.slice(p, w0+1)
	return a + (b-a)*f
}

func (s *Perlin) slice(p Vec3, w float64) float64 {
	x, y, z := p.X+w*perlinSliceX, p.Y+w*perlinSliceY, p.Z+w*perlinSliceZ
	if !inLattice(x, y, z) {
		return outOfLattice(x, y, z)
	}
	return s.p.Noise3D(x, y, z)
}

func inLattice(vs ...float64) bool {
	for _, v := range vs {
		if !(math.Abs(v) < perlinLimit) {
			return false
		}
	}
	return true
}

func outOfLattice(vs ...float64) float64 {
	for _, v := range vs {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	return math.Inf(1)
}
