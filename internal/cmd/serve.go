package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/pipeline"
	"github.com/MeKo-Tech/turbulence/internal/server"
	"github.com/MeKo-Tech/turbulence/internal/texture"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve noise tiles and point samples over HTTP",
	Long: `Serve tiles from a folder (rendering missing tiles on demand) or from an
MBTiles file, plus GET /sample?x=&y=&z=&w=&detail= for single evaluations.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("tiles-dir", "", "Directory containing tiles (defaults to --output-dir)")
	serveCmd.Flags().String("mbtiles", "", "Serve tiles from this MBTiles file instead of a folder")

	serveCmd.Flags().Bool("generate-missing", true, "Generate missing tiles on-demand and cache them to disk")
	serveCmd.Flags().Bool("disable-cache", false, "Always regenerate tiles (still writes to disk)")
	serveCmd.Flags().Int("max-concurrent-generations", runtime.NumCPU(), "Max concurrent tile generations (default: number of CPUs)")
	serveCmd.Flags().Duration("generation-timeout", 2*time.Minute, "Timeout per tile generation")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")

	serveCmd.Flags().Int("tile-size", 256, "Base tile size in pixels (@2x requests render twice the size)")
	serveCmd.Flags().String("png-compression", "default", "PNG compression (default, speed, best, none)")
	serveCmd.Flags().String("mode", string(texture.ModeFac), "Tile output: fac (grayscale) or color")
	serveCmd.Flags().Float64("world-scale", 8, "Noise-space size of the whole world before --scale")
	serveCmd.Flags().Float64("detail-per-zoom", 0.5, "Detail added per zoom level")
	serveCmd.Flags().Float64("plane-z", 0, "Z coordinate of the sampled plane")
	serveCmd.Flags().Float64("plane-w", 0, "W coordinate of the sampled plane")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.tiles_dir", "tiles-dir")
	mustBind("serve.mbtiles", "mbtiles")
	mustBind("serve.generate_missing", "generate-missing")
	mustBind("serve.disable_cache", "disable-cache")
	mustBind("serve.max_concurrent_generations", "max-concurrent-generations")
	mustBind("serve.generation_timeout", "generation-timeout")
	mustBind("serve.cache_control", "cache-control")

	mustBind("serve.tile_size", "tile-size")
	mustBind("serve.png_compression", "png-compression")
	mustBind("serve.mode", "mode")
	mustBind("serve.world_scale", "world-scale")
	mustBind("serve.detail_per_zoom", "detail-per-zoom")
	mustBind("serve.plane_z", "plane-z")
	mustBind("serve.plane_w", "plane-w")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	tilesDir := viper.GetString("serve.tiles_dir")
	if tilesDir == "" {
		tilesDir = viper.GetString("output-dir")
	}
	mbtilesPath := viper.GetString("serve.mbtiles")

	nc := nodeConfigFromViper()
	node, err := nc.Build()
	if err != nil {
		return err
	}
	sample, err := server.NewSampleHandler(node, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/sample", sample)

	if mbtilesPath != "" {
		h, err := server.NewMBTilesHandler(server.MBTilesConfig{
			MBTilesPath:  mbtilesPath,
			CacheControl: viper.GetString("serve.cache_control"),
		}, logger)
		if err != nil {
			return err
		}
		defer h.Close()

		mux.Handle("/tiles/", h.Handler())
		mux.Handle("/metadata.json", h.MetadataHandler())
		logger.Info("serving MBTiles", "path", mbtilesPath)
	} else {
		gen, err := newGenerator(generateOptions{
			node:            nc,
			outputDir:       tilesDir,
			pngCompression:  viper.GetString("serve.png_compression"),
			mode:            viper.GetString("serve.mode"),
			worldScale:      viper.GetFloat64("serve.world_scale"),
			detailPerZoom:   viper.GetFloat64("serve.detail_per_zoom"),
			plane:           noise.Vec4{Z: viper.GetFloat64("serve.plane_z"), W: viper.GetFloat64("serve.plane_w")},
			folderStructure: pipeline.FolderFlat,
		}, viper.GetInt("serve.tile_size"), nil, logger)
		if err != nil {
			return err
		}

		od, err := server.NewOnDemandTiles(gen, server.OnDemandTilesConfig{
			GenerateMissing:          viper.GetBool("serve.generate_missing"),
			DisableCache:             viper.GetBool("serve.disable_cache"),
			MaxConcurrentGenerations: viper.GetInt("serve.max_concurrent_generations"),
			GenerationTimeout:        viper.GetDuration("serve.generation_timeout"),
			CacheControl:             viper.GetString("serve.cache_control"),
		}, logger)
		if err != nil {
			return err
		}

		mux.Handle("/tiles/", od.Handler())
		mux.Handle("/status", od.StatusHandler())
		mux.Handle("/status/stream", od.StatusStreamHandler(250*time.Millisecond))
		logger.Info("serving tile folder", "tiles_dir", tilesDir, "generate_missing", viper.GetBool("serve.generate_missing"))
	}

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return listenAndServe(cmd.Context(), srv)
}

// listenAndServe runs srv until ctx is cancelled, then shuts it down.
func listenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
