package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/texture"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var texturesCmd = &cobra.Command{
	Use:   "textures",
	Short: "Render the preset noise textures",
	Long:  "Render the built-in noise texture presets as PNG files using the configured noise source and seed.",
	RunE:  runTextures,
}

func init() {
	rootCmd.AddCommand(texturesCmd)

	texturesCmd.Flags().String("textures-dir", filepath.Join("assets", "textures"), "Output directory for generated textures")
	texturesCmd.Flags().Int("size", 512, "Texture size in pixels (square)")
	texturesCmd.Flags().Bool("force", false, "Overwrite textures that already exist")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"textures.dir", "textures-dir"},
		{"textures.size", "size"},
		{"textures.force", "force"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, texturesCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runTextures(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	dir := viper.GetString("textures.dir")
	size := viper.GetInt("textures.size")
	force := viper.GetBool("textures.force")
	nc := nodeConfigFromViper()

	if size <= 0 {
		return fmt.Errorf("size must be positive")
	}
	src, err := noise.NewSource(nc.Source, nc.Seed)
	if err != nil {
		return err
	}

	result, err := texture.WritePresets(cmd.Context(), dir, size, src, force)
	if err != nil {
		return err
	}

	logger.Info("Texture generation complete",
		"dir", dir,
		"source", nc.Source,
		"written", len(result.Written),
		"skipped", len(result.Skipped),
	)
	return nil
}
