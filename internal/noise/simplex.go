package noise

import "github.com/ojrac/opensimplex-go"

// Simplex is an OpenSimplex Source. 1-D points are evaluated on the y=0
// line of the 2-D generator.
type Simplex struct {
	signed   opensimplex.Noise
	unsigned opensimplex.Noise
}

func NewSimplex(seed int64) *Simplex {
	return &Simplex{
		signed:   opensimplex.New(seed),
		unsigned: opensimplex.NewNormalized(seed),
	}
}

func (s *Simplex) Signed(pt Point) float64 {
	return eval(s.signed, pt)
}

func (s *Simplex) Unsigned(pt Point) float64 {
	return eval(s.unsigned, pt)
}

func eval(n opensimplex.Noise, pt Point) float64 {
	switch pt.Dim {
	case 1:
		return n.Eval2(pt.Pos.X, 0)
	case 2:
		return n.Eval2(pt.Pos.X, pt.Pos.Y)
	case 3:
		return n.Eval3(pt.Pos.X, pt.Pos.Y, pt.Pos.Z)
	default:
		return n.Eval4(pt.Pos.X, pt.Pos.Y, pt.Pos.Z, pt.W)
	}
}
