package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/MeKo-Tech/turbulence/internal/mbtiles"
	"github.com/MeKo-Tech/turbulence/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert folder tiles to MBTiles format",
	Long: `Convert a tile folder written by generate (flat or nested layout) into an
MBTiles database. The current noise flags are stored as metadata.`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().String("input-dir", "./tiles", "Input directory containing tiles")
	convertCmd.Flags().StringP("output", "o", "", "Output MBTiles file path (required)")
	convertCmd.Flags().String("name", "turbulence", "Tileset name")
	convertCmd.Flags().String("description", "Fractal turbulence noise tiles", "Tileset description")
	convertCmd.Flags().String("attribution", "", "Attribution text")
	convertCmd.Flags().String("bounds", "", "Bounding box: minLon,minLat,maxLon,maxLat (optional)")
	convertCmd.Flags().Bool("hidpi", false, "Convert the @2x tiles instead of the base tiles")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"convert.input_dir", "input-dir"},
		{"convert.output", "output"},
		{"convert.name", "name"},
		{"convert.description", "description"},
		{"convert.attribution", "attribution"},
		{"convert.bounds", "bounds"},
		{"convert.hidpi", "hidpi"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, convertCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	inputDir := viper.GetString("convert.input_dir")
	outputFile := viper.GetString("convert.output")
	name := viper.GetString("convert.name")
	description := viper.GetString("convert.description")
	attribution := viper.GetString("convert.attribution")
	boundsStr := viper.GetString("convert.bounds")
	hidpi := viper.GetBool("convert.hidpi")

	if logger == nil {
		initLogging()
	}

	if outputFile == "" {
		return fmt.Errorf("--output is required")
	}
	if _, err := os.Stat(inputDir); os.IsNotExist(err) {
		return fmt.Errorf("input directory does not exist: %s", inputDir)
	}

	suffix := ""
	if hidpi {
		suffix = server.HiDPISuffix
	}

	logger.Info("Converting folder tiles to MBTiles",
		"input_dir", inputDir,
		"output", outputFile,
		"name", name,
		"hidpi", hidpi,
	)

	tiles, minZoom, maxZoom, err := scanTilesDirectory(inputDir, suffix)
	if err != nil {
		return fmt.Errorf("failed to scan tiles directory: %w", err)
	}
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles found in %s", inputDir)
	}
	logger.Info("Found tiles", "count", len(tiles), "min_zoom", minZoom, "max_zoom", maxZoom)

	var bounds [4]float64
	if boundsStr != "" {
		if bounds, err = parseBBox(boundsStr); err != nil {
			return fmt.Errorf("invalid bounds: %w", err)
		}
	}

	nc := nodeConfigFromViper()
	node, err := nc.Build()
	if err != nil {
		return err
	}

	metadata := mbtiles.Metadata{
		Name:        name,
		Format:      "png",
		MinZoom:     minZoom,
		MaxZoom:     maxZoom,
		Bounds:      bounds,
		Center:      [3]float64{(bounds[0] + bounds[2]) / 2, (bounds[1] + bounds[3]) / 2, float64((minZoom + maxZoom) / 2)},
		Attribution: attribution,
		Description: description,
		Type:        "overlay",
		Version:     "1.0",
		Extra:       nc.Metadata(node),
	}

	writer, err := mbtiles.New(outputFile, metadata)
	if err != nil {
		return fmt.Errorf("failed to create MBTiles writer: %w", err)
	}

	converted := 0
	for _, t := range tiles {
		data, err := os.ReadFile(t.path)
		if err != nil {
			logger.Error("Failed to read tile", "path", t.path, "error", err)
			continue
		}
		if err := writer.WriteTile(t.z, t.x, t.y, data); err != nil {
			logger.Error("Failed to write tile", "coords", fmt.Sprintf("%d/%d/%d", t.z, t.x, t.y), "error", err)
			continue
		}
		converted++
		if converted%100 == 0 {
			logger.Info("Progress", "converted", converted, "total", len(tiles))
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish MBTiles: %w", err)
	}

	logger.Info("Conversion complete", "output", outputFile, "tiles", converted)
	return nil
}

type tileInfo struct {
	z, x, y int
	path    string
}

var (
	flatTilePattern   = regexp.MustCompile(`^z(\d+)_x(\d+)_y(\d+)(@2x)?\.png$`)
	nestedTilePattern = regexp.MustCompile(`^(\d+)/(\d+)/(\d+)(@2x)?\.png$`)
)

// scanTilesDirectory finds tiles in flat (z{z}_x{x}_y{y}.png) and nested
// ({z}/{x}/{y}.png) layouts. Only tiles whose suffix matches are returned,
// sorted by z, x, y.
func scanTilesDirectory(dir, suffix string) ([]tileInfo, int, int, error) {
	var tiles []tileInfo
	minZoom, maxZoom := -1, 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		matches := flatTilePattern.FindStringSubmatch(filepath.Base(path))
		if matches == nil {
			matches = nestedTilePattern.FindStringSubmatch(filepath.ToSlash(rel))
		}
		if matches == nil || matches[4] != suffix {
			return nil
		}

		z, _ := strconv.Atoi(matches[1])
		x, _ := strconv.Atoi(matches[2])
		y, _ := strconv.Atoi(matches[3])
		if z > 30 || x >= 1<<z || y >= 1<<z {
			return nil
		}

		tiles = append(tiles, tileInfo{z: z, x: x, y: y, path: path})
		if minZoom < 0 || z < minZoom {
			minZoom = z
		}
		if z > maxZoom {
			maxZoom = z
		}
		return nil
	})
	if err != nil {
		return nil, 0, 0, err
	}
	if len(tiles) == 0 {
		return nil, 0, 0, nil
	}

	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i], tiles[j]
		if a.z != b.z {
			return a.z < b.z
		}
		if a.x != b.x {
			return a.x < b.x
		}
		return a.y < b.y
	})
	return tiles, minZoom, maxZoom, nil
}
