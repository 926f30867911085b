package texture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatSource float64

func (f flatSource) Unsigned(noise.Point) float64 { return float64(f) }
func (f flatSource) Signed(noise.Point) float64   { return 0 }

func testParams() Params {
	node := shader.DefaultNoiseTexture(noise.NewPerlin(1337))
	node.Detail = 4.5
	return Params{
		Size:    64,
		Node:    node,
		Span:    1,
		Mode:    ModeFac,
		Workers: 3,
	}
}

func TestRenderFac(t *testing.T) {
	img, err := Render(context.Background(), testParams())
	require.NoError(t, err)

	gray, ok := img.(*image.Gray)
	require.True(t, ok, "fac mode should produce *image.Gray, got %T", img)
	assert.Equal(t, image.Rect(0, 0, 64, 64), gray.Bounds())

	first := gray.GrayAt(0, 0).Y
	varied := false
	for _, v := range gray.Pix {
		if v != first {
			varied = true
			break
		}
	}
	assert.True(t, varied, "texture should not be flat")
}

func TestRenderDeterministic(t *testing.T) {
	a, err := Render(context.Background(), testParams())
	require.NoError(t, err)

	p := testParams()
	p.Workers = 1
	b, err := Render(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, a.(*image.Gray).Pix, b.(*image.Gray).Pix)
}

func TestRenderConstantSource(t *testing.T) {
	p := testParams()
	p.Node.Source = flatSource(0.5)

	img, err := Render(context.Background(), p)
	require.NoError(t, err)

	for _, v := range img.(*image.Gray).Pix {
		require.Equal(t, uint8(128), v)
	}
}

func TestRenderColorSupersampled(t *testing.T) {
	p := testParams()
	p.Mode = ModeColor
	p.Supersample = 2
	p.Size = 32

	img, err := Render(context.Background(), p)
	require.NoError(t, err)

	rgba, ok := img.(*image.NRGBA)
	require.True(t, ok, "color mode should produce *image.NRGBA, got %T", img)
	assert.Equal(t, 32, rgba.Bounds().Dx())
	assert.Equal(t, 32, rgba.Bounds().Dy())
	assert.Equal(t, uint8(255), rgba.NRGBAAt(5, 5).A)
}

func TestRenderPostProcessKeepsSize(t *testing.T) {
	p := testParams()
	p.BlurSigma = 1.5
	p.Contrast = 20

	img, err := Render(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), img.Bounds())
	_, ok := img.(*image.Gray)
	assert.True(t, ok)
}

func TestRenderRejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero size", func(p *Params) { p.Size = 0 }},
		{"zero span", func(p *Params) { p.Span = 0 }},
		{"bad mode", func(p *Params) { p.Mode = "height" }},
		{"bad node", func(p *Params) { p.Node.Dimensions = 7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			_, err := Render(context.Background(), p)
			assert.Error(t, err)
		})
	}
}

func TestRenderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Render(ctx, testParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPostProcessNoop(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	assert.Same(t, img, PostProcess(img, 0, 0))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("color")
	require.NoError(t, err)
	assert.Equal(t, ModeColor, m)

	_, err = ParseMode("normal")
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		name string
		want png.CompressionLevel
	}{
		{"", png.DefaultCompression},
		{"default", png.DefaultCompression},
		{"speed", png.BestSpeed},
		{"best", png.BestCompression},
		{"none", png.NoCompression},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseCompression("max")
	assert.Error(t, err)
}

func TestEncodeBytesProducesPNG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	data, err := EncodeBytes(img, "speed")
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestWritePresets(t *testing.T) {
	dir := t.TempDir()

	result, err := WritePresets(context.Background(), dir, 32, noise.NewSimplex(1337), false)
	require.NoError(t, err)
	require.Len(t, result.Written, len(PresetOrder))
	assert.Empty(t, result.Skipped)

	for _, path := range result.Written {
		_, err := os.Stat(path)
		require.NoError(t, err, "missing generated texture %s", path)
	}

	again, err := WritePresets(context.Background(), dir, 32, noise.NewSimplex(1337), false)
	require.NoError(t, err)
	assert.Empty(t, again.Written)
	assert.Len(t, again.Skipped, len(PresetOrder))

	_, err = WritePresets(context.Background(), dir, 0, noise.NewSimplex(1), true)
	assert.Error(t, err)
}

func TestPresetsAreValid(t *testing.T) {
	for _, name := range PresetOrder {
		preset, ok := Presets[name]
		require.True(t, ok, name)
		assert.NoError(t, preset.Node(noise.NewPerlin(1)).Validate(), name)
	}
}

type closeErrWriter struct {
	bytes.Buffer
	closed bool
	err    error
}

func (w *closeErrWriter) Close() error {
	w.closed = true
	return w.err
}

func TestEncodeAndCloseReportsCloseError(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	errClose := errors.New("disk full")

	w := &closeErrWriter{err: errClose}
	err := encodeAndClose(w, img, "default")
	require.ErrorIs(t, err, errClose)
	assert.True(t, w.closed)

	ok := &closeErrWriter{}
	require.NoError(t, encodeAndClose(ok, img, "default"))
	assert.True(t, ok.closed)
	assert.NotZero(t, ok.Len())

	bad := &closeErrWriter{}
	assert.Error(t, encodeAndClose(bad, img, "max"))
	assert.True(t, bad.closed)
}

func TestWritePNGCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "tex.png")
	require.NoError(t, WritePNG(path, image.NewGray(image.Rect(0, 0, 4, 4)), "speed"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)
}
