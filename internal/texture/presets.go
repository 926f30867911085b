package texture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
)

// Preset is a named node configuration.
type Preset struct {
	Dimensions int
	Scale      float64
	Detail     float64
	Distortion float64
	Mode       Mode
	BlurSigma  float32
	Contrast   float32
}

// Node builds the preset's node on src.
func (p Preset) Node(src noise.Source) shader.NoiseTexture {
	return shader.NoiseTexture{
		Source:     src,
		Dimensions: p.Dimensions,
		Scale:      p.Scale,
		Detail:     p.Detail,
		Distortion: p.Distortion,
	}
}

// WriteResult reports which textures were written or skipped.
type WriteResult struct {
	Written []string
	Skipped []string
}

// PresetOrder is the order in which WritePresets writes files.
var PresetOrder = []string{"fine", "coarse", "clouds", "marble", "color"}

// Presets holds the built-in texture presets.
var Presets = map[string]Preset{
	"fine":   {Dimensions: 3, Scale: 12, Detail: 8, Mode: ModeFac},
	"coarse": {Dimensions: 3, Scale: 2.5, Detail: 1.5, Mode: ModeFac},
	"clouds": {Dimensions: 3, Scale: 4, Detail: 6.5, Mode: ModeFac, BlurSigma: 0.8, Contrast: 15},
	"marble": {Dimensions: 2, Scale: 3, Detail: 4, Distortion: 2.5, Mode: ModeFac, Contrast: 25},
	"color":  {Dimensions: 4, Scale: 5, Detail: 3.5, Distortion: 0.6, Mode: ModeColor},
}

// WritePresets renders every preset into dir as <name>.png.
// Existing files are kept unless overwrite is set.
func WritePresets(ctx context.Context, dir string, size int, src noise.Source, overwrite bool) (WriteResult, error) {
	result := WriteResult{}
	if size <= 0 {
		return result, fmt.Errorf("size must be positive")
	}
	if src == nil {
		return result, fmt.Errorf("noise source is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result, fmt.Errorf("failed to create texture dir: %w", err)
	}

	for _, name := range PresetOrder {
		preset, ok := Presets[name]
		if !ok {
			return result, fmt.Errorf("missing preset %s", name)
		}
		path := filepath.Join(dir, name+".png")
		if !overwrite {
			if _, err := os.Stat(path); err == nil {
				result.Skipped = append(result.Skipped, path)
				continue
			}
		}

		img, err := Render(ctx, Params{
			Size:        size,
			Node:        preset.Node(src),
			Span:        1,
			Origin:      noise.Vec4{Z: 0.5, W: 0.5},
			Mode:        preset.Mode,
			Supersample: 2,
			BlurSigma:   preset.BlurSigma,
			Contrast:    preset.Contrast,
		})
		if err != nil {
			return result, fmt.Errorf("failed to render preset %s: %w", name, err)
		}
		if err := WritePNG(path, img, "default"); err != nil {
			return result, err
		}
		result.Written = append(result.Written, path)
	}

	return result, nil
}
