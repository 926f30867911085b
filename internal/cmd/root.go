package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "turbulence",
	Short: "Fractal turbulence noise sampler and tile renderer",
	Long: `Turbulence evaluates band-limited fractal noise (Perlin or OpenSimplex,
1 to 4 dimensions, fractional octave detail) and renders it as sample
statistics, preset textures, or a Web Mercator tile pyramid.`,
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	flags.String("output-dir", "./tiles", "Output directory for generated tiles")
	flags.Bool("verbose", false, "Enable verbose logging")

	flags.String("source", noise.SourcePerlin, fmt.Sprintf("Noise source (%s)", strings.Join(noise.Sources(), ", ")))
	flags.Int64("seed", 1337, "Seed of the noise source")
	flags.Int("dimensions", 3, "Number of coordinate components fed to the noise (1-4)")
	flags.Float64("scale", 5, "Noise scale applied to every coordinate")
	flags.Float64("detail", 2, "Octave detail, clamped to [0,16]; fractions blend the last octave")
	flags.Float64("distortion", 0, "Domain distortion strength")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"output-dir", "output-dir"},
		{"verbose", "verbose"},
		{"noise.source", "source"},
		{"noise.seed", "seed"},
		{"noise.dimensions", "dimensions"},
		{"noise.scale", "scale"},
		{"noise.detail", "detail"},
		{"noise.distortion", "distortion"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, flags.Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// TURBULENCE_NOISE_DETAIL overrides noise.detail.
	viper.SetEnvPrefix("TURBULENCE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
