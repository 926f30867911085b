// Package noise computes bounded single-octave and fractal (turbulence) noise
// over 1 to 4 dimensional coordinates.
//
// The pseudo-random primitive is supplied by a Source. Everything in this
// package is a pure function of its arguments and safe for concurrent use as
// long as the Source is.
package noise

// Point is the form in which a coordinate reaches a Source: up to three
// position components plus an auxiliary fourth axis.
//
// Dim reports how many components are meaningful. For Dim < 3 the unused
// position components are zero, and W is only used when Dim == 4.
type Point struct {
	Dim int
	Pos Vec3
	W   float64
}

// Coordinate is implemented by Float, Vec2, Vec3 and Vec4.
type Coordinate[C any] interface {
	Dim() int
	Scale(f float64) C
	Point() Point
}

// Float is a 1-D coordinate.
type Float float64

func (f Float) Dim() int { return 1 }

func (f Float) Scale(s float64) Float { return Float(float64(f) * s) }

func (f Float) Point() Point { return Point{Dim: 1, Pos: Vec3{X: float64(f)}} }

// Vec2 is a 2-D coordinate.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Dim() int { return 2 }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

func (v Vec2) Point() Point { return Point{Dim: 2, Pos: Vec3{X: v.X, Y: v.Y}} }

// Vec3 is a 3-D coordinate.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Dim() int { return 3 }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

func (v Vec3) Point() Point { return Point{Dim: 3, Pos: v} }

// Add returns the component-wise sum.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Vec4 is a 4-D coordinate. W is passed to the Source separately from the
// X/Y/Z position.
type Vec4 struct {
	X, Y, Z, W float64
}

func (v Vec4) Dim() int { return 4 }

func (v Vec4) Scale(s float64) Vec4 {
	return Vec4{X: v.X * s, Y: v.Y * s, Z: v.Z * s, W: v.W * s}
}

func (v Vec4) Point() Point {
	return Point{Dim: 4, Pos: v.XYZ(), W: v.W}
}

// XYZ drops the W component.
func (v Vec4) XYZ() Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// Add returns the component-wise sum.
func (v Vec4) Add(o Vec4) Vec4 {
	return Vec4{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z, W: v.W + o.W}
}
