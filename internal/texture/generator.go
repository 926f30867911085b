package texture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
	"github.com/disintegration/gift"
	"golang.org/x/image/draw"
)

// Mode selects which node output is written to the image.
type Mode string

const (
	ModeFac   Mode = "fac"
	ModeColor Mode = "color"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFac, ModeColor:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be %q or %q", s, ModeFac, ModeColor)
	}
}

// PointFunc maps normalized image coordinates (u, v in [0,1], origin top
// left) to a point in noise space.
type PointFunc func(u, v float64) noise.Vec4

// Params defines a square noise texture.
type Params struct {
	Size int
	Node shader.NoiseTexture
	// Origin is the noise-space point at the top left corner. Span is the
	// noise-space width and height covered by the image.
	Origin noise.Vec4
	Span   float64
	Mode   Mode
	// Supersample renders at Size*Supersample and downsamples.
	Supersample int
	BlurSigma   float32
	// Contrast is a percentage in [-100,100].
	Contrast float32
	Workers  int
}

// Render rasterizes p.Node into a Size×Size image.
func Render(ctx context.Context, p Params) (image.Image, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("size must be positive")
	}
	if p.Span <= 0 || math.IsInf(p.Span, 0) || math.IsNaN(p.Span) {
		return nil, fmt.Errorf("span must be positive and finite")
	}
	if p.Mode == "" {
		p.Mode = ModeFac
	}
	if p.Supersample < 1 {
		p.Supersample = 1
	}

	origin, span := p.Origin, p.Span
	at := func(u, v float64) noise.Vec4 {
		q := origin
		q.X += u * span
		q.Y += v * span
		return q
	}

	px := p.Size * p.Supersample
	img, err := Rasterize(ctx, p.Node, p.Mode, px, px, p.Workers, at)
	if err != nil {
		return nil, err
	}
	if p.Supersample > 1 {
		img = Downsample(img, p.Size, p.Size)
	}
	return PostProcess(img, p.BlurSigma, p.Contrast), nil
}

// Rasterize evaluates node at every pixel center of a width×height image.
// Rows are spread over workers goroutines (default: number of CPUs) and
// the context is checked before each row.
func Rasterize(ctx context.Context, node shader.NoiseTexture, mode Mode, width, height, workers int, at PointFunc) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image dimensions must be positive, got %dx%d", width, height)
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > height {
		workers = height
	}

	bounds := image.Rect(0, 0, width, height)
	var (
		gray *image.Gray
		rgba *image.NRGBA
	)
	switch mode {
	case ModeFac:
		gray = image.NewGray(bounds)
	case ModeColor:
		rgba = image.NewNRGBA(bounds)
	default:
		return nil, fmt.Errorf("invalid mode %q", mode)
	}

	rows := make(chan int, height)
	for y := 0; y < height; y++ {
		rows <- y
	}
	close(rows)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rows {
				if ctx.Err() != nil {
					return
				}
				v := (float64(y) + 0.5) / float64(height)
				for x := 0; x < width; x++ {
					u := (float64(x) + 0.5) / float64(width)
					p := at(u, v)
					if gray != nil {
						gray.SetGray(x, y, color.Gray{Y: toByte(node.Fac(p, node.Detail))})
						continue
					}
					out := node.Evaluate(p)
					rgba.SetNRGBA(x, y, color.NRGBA{
						R: toByte(out.Color.R),
						G: toByte(out.Color.G),
						B: toByte(out.Color.B),
						A: 255,
					})
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if gray != nil {
		return gray, nil
	}
	return rgba, nil
}

// Downsample scales img to width×height with a Catmull-Rom filter, keeping
// grayscale images grayscale.
func Downsample(img image.Image, width, height int) image.Image {
	rect := image.Rect(0, 0, width, height)
	var dst draw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewNRGBA(rect)
	}
	draw.CatmullRom.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
	return dst
}

// PostProcess applies an optional Gaussian blur and contrast adjustment.
// img is returned unchanged when both are zero.
func PostProcess(img image.Image, blurSigma, contrast float32) image.Image {
	var filters []gift.Filter
	if blurSigma > 0 {
		filters = append(filters, gift.GaussianBlur(blurSigma))
	}
	if contrast != 0 {
		filters = append(filters, gift.Contrast(contrast))
	}
	if len(filters) == 0 {
		return img
	}

	g := gift.New(filters...)
	bounds := g.Bounds(img.Bounds())
	if _, ok := img.(*image.Gray); ok {
		dst := image.NewGray(bounds)
		g.Draw(dst, img)
		return dst
	}
	dst := image.NewNRGBA(bounds)
	g.Draw(dst, img)
	return dst
}

func toByte(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
