package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/turbulence/internal/mbtiles"
	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/pipeline"
	"github.com/MeKo-Tech/turbulence/internal/server"
	"github.com/MeKo-Tech/turbulence/internal/shader"
	"github.com/MeKo-Tech/turbulence/internal/texture"
	"github.com/MeKo-Tech/turbulence/internal/tile"
	"github.com/MeKo-Tech/turbulence/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate noise tiles",
	Long: `Generate tiles of the noise node laid over Web Mercator space, either a
single z/x/y tile or every tile of a bounding box across a zoom range.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	// Single tile flags
	generateCmd.Flags().IntP("zoom", "z", 0, "Zoom level (for single tile mode)")
	generateCmd.Flags().IntP("x", "x", 0, "X tile coordinate (for single tile mode)")
	generateCmd.Flags().IntP("y", "y", 0, "Y tile coordinate (for single tile mode)")

	// Batch generation flags
	generateCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat (e.g., \"-180,-85,180,85\")")
	generateCmd.Flags().Int("zoom-min", 0, "Minimum zoom level for batch generation")
	generateCmd.Flags().Int("zoom-max", 0, "Maximum zoom level for batch generation")
	generateCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	generateCmd.Flags().Bool("progress", true, "Show progress bar during batch generation")
	generateCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some tiles fail")

	// Rendering flags
	generateCmd.Flags().Bool("force", false, "Force regeneration even if tile exists")
	generateCmd.Flags().Int("tile-size", 256, "Tile size in pixels")
	generateCmd.Flags().Bool("hidpi", false, "Also generate a 2x (@2x) tile alongside the base tile")
	generateCmd.Flags().String("png-compression", "default", "PNG compression (default, speed, best, none)")
	generateCmd.Flags().String("mode", string(texture.ModeFac), "Tile output: fac (grayscale) or color")
	generateCmd.Flags().Int("supersample", 1, "Render at N times the tile size and downsample")
	generateCmd.Flags().Float64("world-scale", 8, "Noise-space size of the whole world before --scale")
	generateCmd.Flags().Float64("detail-per-zoom", 0.5, "Detail added per zoom level")
	generateCmd.Flags().Float64("plane-z", 0, "Z coordinate of the sampled plane")
	generateCmd.Flags().Float64("plane-w", 0, "W coordinate of the sampled plane")

	// Output format flags
	generateCmd.Flags().String("format", "folder", "Output format: folder or mbtiles")
	generateCmd.Flags().String("output-file", "", "Output file path for MBTiles format (e.g., noise.mbtiles)")
	generateCmd.Flags().String("folder-structure", pipeline.FolderFlat, "Folder structure for folder format: flat (z{z}_x{x}_y{y}.png) or nested ({z}/{x}/{y}.png)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"generate.zoom", "zoom"},
		{"generate.x", "x"},
		{"generate.y", "y"},
		{"generate.bbox", "bbox"},
		{"generate.zoom_min", "zoom-min"},
		{"generate.zoom_max", "zoom-max"},
		{"generate.workers", "workers"},
		{"generate.progress", "progress"},
		{"generate.allow_failures", "allow-failures"},
		{"generate.force", "force"},
		{"generate.tile_size", "tile-size"},
		{"generate.hidpi", "hidpi"},
		{"generate.png_compression", "png-compression"},
		{"generate.mode", "mode"},
		{"generate.supersample", "supersample"},
		{"generate.world_scale", "world-scale"},
		{"generate.detail_per_zoom", "detail-per-zoom"},
		{"generate.plane_z", "plane-z"},
		{"generate.plane_w", "plane-w"},
		{"generate.format", "format"},
		{"generate.output_file", "output-file"},
		{"generate.folder_structure", "folder-structure"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, generateCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// generateOptions holds the generate command configuration.
type generateOptions struct {
	node            nodeConfig
	zoom, x, y      int
	bbox            string
	zoomMin         int
	zoomMax         int
	workers         int
	showProgress    bool
	allowFailures   bool
	force           bool
	outputDir       string
	tileSize        int
	hidpi           bool
	pngCompression  string
	mode            string
	supersample     int
	worldScale      float64
	detailPerZoom   float64
	plane           noise.Vec4
	format          string
	outputFile      string
	folderStructure string
}

func generateOptionsFromViper() generateOptions {
	return generateOptions{
		node:            nodeConfigFromViper(),
		zoom:            viper.GetInt("generate.zoom"),
		x:               viper.GetInt("generate.x"),
		y:               viper.GetInt("generate.y"),
		bbox:            viper.GetString("generate.bbox"),
		zoomMin:         viper.GetInt("generate.zoom_min"),
		zoomMax:         viper.GetInt("generate.zoom_max"),
		workers:         viper.GetInt("generate.workers"),
		showProgress:    viper.GetBool("generate.progress"),
		allowFailures:   viper.GetBool("generate.allow_failures"),
		force:           viper.GetBool("generate.force"),
		outputDir:       viper.GetString("output-dir"),
		tileSize:        viper.GetInt("generate.tile_size"),
		hidpi:           viper.GetBool("generate.hidpi"),
		pngCompression:  viper.GetString("generate.png_compression"),
		mode:            viper.GetString("generate.mode"),
		supersample:     viper.GetInt("generate.supersample"),
		worldScale:      viper.GetFloat64("generate.world_scale"),
		detailPerZoom:   viper.GetFloat64("generate.detail_per_zoom"),
		plane:           noise.Vec4{Z: viper.GetFloat64("generate.plane_z"), W: viper.GetFloat64("generate.plane_w")},
		format:          viper.GetString("generate.format"),
		outputFile:      viper.GetString("generate.output_file"),
		folderStructure: viper.GetString("generate.folder_structure"),
	}
}

func (o generateOptions) validate() error {
	if o.format != "folder" && o.format != "mbtiles" {
		return fmt.Errorf("invalid format %q: must be 'folder' or 'mbtiles'", o.format)
	}
	if o.folderStructure != pipeline.FolderFlat && o.folderStructure != pipeline.FolderNested {
		return fmt.Errorf("invalid folder-structure %q: must be 'flat' or 'nested'", o.folderStructure)
	}
	if o.format == "mbtiles" {
		if o.outputFile == "" {
			return fmt.Errorf("--output-file is required when using --format=mbtiles")
		}
		if o.bbox == "" {
			return fmt.Errorf("mbtiles format requires batch generation (use --bbox)")
		}
	}
	return nil
}

// newGenerator builds a pipeline generator for the given tile size and writer.
func newGenerator(o generateOptions, tileSize int, writer pipeline.TileWriter, log *slog.Logger) (*pipeline.Generator, error) {
	node, err := o.node.Build()
	if err != nil {
		return nil, err
	}
	mode, err := texture.ParseMode(o.mode)
	if err != nil {
		return nil, err
	}

	gen, err := pipeline.NewGenerator(pipeline.Config{
		Node:          node,
		OutputDir:     o.outputDir,
		TileSize:      tileSize,
		WorldScale:    o.worldScale,
		DetailPerZoom: o.detailPerZoom,
		Plane:         o.plane,
	}, log, pipeline.GeneratorOptions{
		PNGCompression:  o.pngCompression,
		TileWriter:      writer,
		FolderStructure: o.folderStructure,
		Mode:            mode,
		Supersample:     o.supersample,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init generator: %w", err)
	}
	return gen, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	opts := generateOptionsFromViper()
	if err := opts.validate(); err != nil {
		return err
	}

	if opts.bbox != "" {
		return runBatchGenerate(cmd.Context(), opts)
	}
	return runSingleGenerate(cmd.Context(), opts)
}

func runSingleGenerate(ctx context.Context, o generateOptions) error {
	if o.zoom < 0 || o.x < 0 || o.y < 0 {
		return fmt.Errorf("invalid coordinates: zoom/x/y must be non-negative")
	}
	coords := tile.NewCoords(uint32(o.zoom), uint32(o.x), uint32(o.y))
	if !coords.Valid() {
		return fmt.Errorf("tile %s does not exist", coords)
	}

	logger.Info("Starting tile generation",
		"coords", coords.String(),
		"output_dir", o.outputDir,
		"force", o.force,
		"source", o.node.Source,
		"tile_size", o.tileSize,
		"hidpi", o.hidpi,
	)

	gen, err := newGenerator(o, o.tileSize, nil, logger)
	if err != nil {
		return err
	}

	path, err := gen.Generate(ctx, coords, o.force, "")
	if err != nil {
		return fmt.Errorf("failed to generate tile: %w", err)
	}
	logger.Info("Tile generated", "coords", coords.String(), "path", path, "detail", gen.DetailAt(coords.Z))

	if o.hidpi {
		gen2x, err := gen.WithTileSize(o.tileSize * 2)
		if err != nil {
			return err
		}
		path2x, err := gen2x.Generate(ctx, coords, o.force, server.HiDPISuffix)
		if err != nil {
			return fmt.Errorf("failed to generate hidpi tile: %w", err)
		}
		logger.Info("HiDPI tile generated", "coords", coords.String(), "path", path2x)
	}

	return nil
}

func runBatchGenerate(ctx context.Context, o generateOptions) error {
	bbox, err := parseBBox(o.bbox)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	if o.zoomMin < 0 || o.zoomMax > tile.MaxZoom {
		return fmt.Errorf("zoom range must be within [0,%d]", tile.MaxZoom)
	}
	if o.zoomMin > o.zoomMax {
		return fmt.Errorf("--zoom-min (%d) must be <= --zoom-max (%d)", o.zoomMin, o.zoomMax)
	}

	workers := o.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tiles := tile.TilesInBBox(bbox, o.zoomMin, o.zoomMax)
	logger.Info("Starting batch tile generation",
		"bbox", o.bbox,
		"zoom_range", fmt.Sprintf("%d-%d", o.zoomMin, o.zoomMax),
		"tiles", len(tiles),
		"hidpi", o.hidpi,
		"workers", workers,
		"format", o.format,
	)

	var baseWriter, hidpiWriter *mbtiles.Writer
	if o.format == "mbtiles" {
		node, err := o.node.Build()
		if err != nil {
			return err
		}
		metadata := mbtiles.Metadata{
			Name:        "turbulence",
			Format:      "png",
			MinZoom:     o.zoomMin,
			MaxZoom:     o.zoomMax,
			Bounds:      bbox,
			Center:      [3]float64{(bbox[0] + bbox[2]) / 2, (bbox[1] + bbox[3]) / 2, float64((o.zoomMin + o.zoomMax) / 2)},
			Description: "Fractal turbulence noise tiles",
			Type:        "overlay",
			Version:     "1.0",
			Extra:       tileMetadata(o, node),
		}

		baseWriter, err = mbtiles.New(o.outputFile, metadata)
		if err != nil {
			return fmt.Errorf("failed to create MBTiles writer: %w", err)
		}
		defer baseWriter.Close()

		if o.hidpi {
			hidpiWriter, err = mbtiles.New(hidpiPath(o.outputFile), metadata)
			if err != nil {
				return fmt.Errorf("failed to create HiDPI MBTiles writer: %w", err)
			}
			defer hidpiWriter.Close()
		}
	}

	passes := []generatePass{{label: "base", tileSize: o.tileSize, writer: baseWriter}}
	if o.hidpi {
		passes = append(passes, generatePass{label: "hidpi", suffix: server.HiDPISuffix, tileSize: o.tileSize * 2, writer: hidpiWriter})
	}

	for _, pass := range passes {
		var writer pipeline.TileWriter
		if pass.writer != nil {
			writer = pass.writer
		}
		gen, err := newGenerator(o, pass.tileSize, writer, logger)
		if err != nil {
			return err
		}

		tasks := make([]worker.Task, 0, len(tiles))
		for _, coords := range tiles {
			tasks = append(tasks, worker.Task{Coords: coords, Force: o.force, Suffix: pass.suffix})
		}

		progress := worker.NewProgress(len(tasks), o.showProgress)
		pool := worker.New(worker.Config{
			Workers:    workers,
			Generator:  gen,
			OnProgress: progress.Callback(),
		})

		logger.Info("Generating tiles", "pass", pass.label, "count", len(tasks))
		results := pool.Run(ctx, tasks)
		progress.Done()
		logger.Info(progress.Summary())

		failed := worker.Failed(results)
		for _, r := range failed {
			logger.Error("Tile generation failed", "coords", r.Task.Coords.String(), "suffix", r.Task.Suffix, "error", r.Err)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("generation cancelled: %w", err)
		}
		if len(failed) > 0 {
			if !o.allowFailures {
				return fmt.Errorf("%d %s tiles failed to generate", len(failed), pass.label)
			}
			logger.Warn("Some tiles failed to generate, continuing due to --allow-failures", "pass", pass.label, "failed_count", len(failed))
		}
	}

	if baseWriter != nil {
		logger.Info("Flushing MBTiles databases...")
		if err := baseWriter.Flush(); err != nil {
			return fmt.Errorf("failed to flush base MBTiles: %w", err)
		}
		if hidpiWriter != nil {
			if err := hidpiWriter.Flush(); err != nil {
				return fmt.Errorf("failed to flush HiDPI MBTiles: %w", err)
			}
		}
		logger.Info("MBTiles generation complete", "base", o.outputFile)
	}

	return nil
}

// generatePass is one resolution of a batch run.
type generatePass struct {
	label    string
	suffix   string
	tileSize int
	writer   *mbtiles.Writer
}

// tileMetadata records everything needed to re-render the tiles.
func tileMetadata(o generateOptions, node shader.NoiseTexture) map[string]string {
	rows := o.node.Metadata(node)
	rows["world_scale"] = strconv.FormatFloat(o.worldScale, 'g', -1, 64)
	rows["detail_per_zoom"] = strconv.FormatFloat(o.detailPerZoom, 'g', -1, 64)
	rows["plane"] = fmt.Sprintf("%g,%g", o.plane.Z, o.plane.W)
	rows["mode"] = o.mode
	return rows
}

// hidpiPath turns noise.mbtiles into noise@2x.mbtiles.
func hidpiPath(path string) string {
	return strings.TrimSuffix(path, ".mbtiles") + server.HiDPISuffix + ".mbtiles"
}

// parseBBox parses a bounding box string "minLon,minLat,maxLon,maxLat" into [4]float64.
func parseBBox(s string) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}

	var bbox [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		bbox[i] = val
	}

	if bbox[0] >= bbox[2] {
		return [4]float64{}, fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", bbox[0], bbox[2])
	}
	if bbox[1] >= bbox[3] {
		return [4]float64{}, fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", bbox[1], bbox[3])
	}

	return bbox, nil
}
