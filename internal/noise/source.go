package noise

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Source is a pseudo-random noise primitive.
//
// Unsigned values are normally within [0,1] and Signed values within [-1,1],
// but both may diverge to infinity for coordinates of extreme magnitude.
// Implementations must be safe for concurrent use and return the same value
// for the same Point.
type Source interface {
	Unsigned(p Point) float64
	Signed(p Point) float64
}

// Kind selects between the unsigned and signed noise families.
type Kind int

const (
	Unsigned Kind = iota
	Signed
)

func (k Kind) String() string {
	switch k {
	case Unsigned:
		return "unsigned"
	case Signed:
		return "signed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Asymptote is the value the noise family approaches at very large
// coordinates.
func (k Kind) Asymptote() float64 {
	if k == Signed {
		return 0.0
	}
	return 0.5
}

func (k Kind) sample(src Source, p Point) float64 {
	if k == Signed {
		return src.Signed(p)
	}
	return src.Unsigned(p)
}

// ErrUnknownSource is returned by NewSource for unsupported names.
var ErrUnknownSource = errors.New("unknown noise source")

const (
	SourcePerlin  = "perlin"
	SourceSimplex = "simplex"
)

var sourceFactories = map[string]func(seed int64) Source{
	SourcePerlin:  func(seed int64) Source { return NewPerlin(seed) },
	SourceSimplex: func(seed int64) Source { return NewSimplex(seed) },
}

// NewSource builds the named Source seeded with seed.
func NewSource(name string, seed int64) (Source, error) {
	factory, ok := sourceFactories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownSource, name, strings.Join(Sources(), ", "))
	}
	return factory(seed), nil
}

// Sources lists the names accepted by NewSource.
func Sources() []string {
	names := make([]string, 0, len(sourceFactories))
	for name := range sourceFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
