package cmd

import (
	"fmt"
	"strconv"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
	"github.com/spf13/viper"
)

// nodeConfig is the noise node described by the shared root flags.
type nodeConfig struct {
	Source     string
	Seed       int64
	Dimensions int
	Scale      float64
	Detail     float64
	Distortion float64
}

func nodeConfigFromViper() nodeConfig {
	return nodeConfig{
		Source:     viper.GetString("noise.source"),
		Seed:       viper.GetInt64("noise.seed"),
		Dimensions: viper.GetInt("noise.dimensions"),
		Scale:      viper.GetFloat64("noise.scale"),
		Detail:     viper.GetFloat64("noise.detail"),
		Distortion: viper.GetFloat64("noise.distortion"),
	}
}

// Build creates the source and validates the node.
func (c nodeConfig) Build() (shader.NoiseTexture, error) {
	src, err := noise.NewSource(c.Source, c.Seed)
	if err != nil {
		return shader.NoiseTexture{}, err
	}

	node := shader.NoiseTexture{
		Source:     src,
		Dimensions: c.Dimensions,
		Scale:      c.Scale,
		Detail:     c.Detail,
		Distortion: c.Distortion,
	}
	if err := node.Validate(); err != nil {
		return shader.NoiseTexture{}, fmt.Errorf("invalid noise flags: %w", err)
	}
	return node, nil
}

// Metadata returns the node parameters as MBTiles metadata rows.
func (c nodeConfig) Metadata(node shader.NoiseTexture) map[string]string {
	rows := node.Params()
	rows["noise_source"] = c.Source
	rows["noise_seed"] = strconv.FormatInt(c.Seed, 10)
	return rows
}
