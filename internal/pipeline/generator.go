// Package pipeline renders noise pyramid tiles.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/turbulence/internal/noise"
	"github.com/MeKo-Tech/turbulence/internal/shader"
	"github.com/MeKo-Tech/turbulence/internal/texture"
	"github.com/MeKo-Tech/turbulence/internal/tile"
)

// Folder structures for file output.
const (
	FolderFlat   = "flat"
	FolderNested = "nested"
)

// TileWriter receives encoded tiles instead of the file system.
// mbtiles.Writer satisfies it.
type TileWriter interface {
	WriteTile(z, x, y int, data []byte) error
}

// GeneratorOptions holds optional generator settings.
type GeneratorOptions struct {
	// PNGCompression is one of default, speed, best or none.
	PNGCompression string
	// TileWriter, when set, receives tiles and nothing is written to disk.
	TileWriter TileWriter
	// FolderStructure is FolderFlat (default) or FolderNested.
	FolderStructure string
	Mode            texture.Mode
	// Supersample renders at TileSize*Supersample and downsamples.
	Supersample int
	// RowWorkers bounds the goroutines used per tile; 0 means one per CPU.
	RowWorkers int
}

// Generator renders tiles of a noise node laid over normalized Web Mercator
// space. The world square [0,1]² maps to [0,WorldScale]² in the node's
// X/Y plane, with Z and W taken from Plane.
type Generator struct {
	node       shader.NoiseTexture
	logger     *slog.Logger
	opts       GeneratorOptions
	outputDir  string
	tileSize   int
	worldScale float64
	// detailPerZoom is added to the node's detail for each zoom level.
	detailPerZoom float64
	plane         noise.Vec4
}

// Config describes the tile pyramid.
type Config struct {
	Node          shader.NoiseTexture
	OutputDir     string
	TileSize      int
	WorldScale    float64
	DetailPerZoom float64
	// Plane supplies the Z and W coordinates of every sample.
	Plane noise.Vec4
}

// NewGenerator validates cfg and prepares a generator.
func NewGenerator(cfg Config, logger *slog.Logger, opts GeneratorOptions) (*Generator, error) {
	if cfg.TileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive")
	}
	if !(cfg.WorldScale > 0) || math.IsInf(cfg.WorldScale, 0) {
		return nil, fmt.Errorf("world scale must be positive and finite, got %v", cfg.WorldScale)
	}
	if math.IsNaN(cfg.DetailPerZoom) || math.IsInf(cfg.DetailPerZoom, 0) {
		return nil, fmt.Errorf("detail per zoom must be finite, got %v", cfg.DetailPerZoom)
	}
	if err := cfg.Node.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputDir == "" && opts.TileWriter == nil {
		return nil, fmt.Errorf("output dir or tile writer is required")
	}

	switch opts.FolderStructure {
	case "":
		opts.FolderStructure = FolderFlat
	case FolderFlat, FolderNested:
	default:
		return nil, fmt.Errorf("invalid folder structure %q: must be %q or %q", opts.FolderStructure, FolderFlat, FolderNested)
	}
	if _, err := texture.ParseCompression(opts.PNGCompression); err != nil {
		return nil, err
	}
	if opts.Mode == "" {
		opts.Mode = texture.ModeFac
	}
	if _, err := texture.ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Supersample < 1 {
		opts.Supersample = 1
	}

	return &Generator{
		node:          cfg.Node,
		logger:        logger,
		opts:          opts,
		outputDir:     cfg.OutputDir,
		tileSize:      cfg.TileSize,
		worldScale:    cfg.WorldScale,
		detailPerZoom: cfg.DetailPerZoom,
		plane:         cfg.Plane,
	}, nil
}

// TileSize returns the edge length of rendered tiles in pixels.
func (g *Generator) TileSize() int {
	return g.tileSize
}

// WithTileSize returns a copy rendering tiles of size pixels, used for
// @2x variants.
func (g *Generator) WithTileSize(size int) (*Generator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("tile size must be positive")
	}
	clone := *g
	clone.tileSize = size
	return &clone, nil
}

// DetailAt returns the node detail used at zoom z before clamping.
func (g *Generator) DetailAt(z uint32) float64 {
	return g.node.Detail + g.detailPerZoom*float64(z)
}

// TilePath returns where coords is written on disk.
func (g *Generator) TilePath(coords tile.Coords, suffix string) string {
	if g.opts.FolderStructure == FolderNested {
		return filepath.Join(g.outputDir, coords.NestedPath(suffix, "png"))
	}
	return filepath.Join(g.outputDir, coords.String()+suffix+".png")
}

// Generate renders one tile. With a TileWriter the encoded tile is handed
// over and the returned path is empty; otherwise the PNG is written to
// TilePath and existing files are kept unless force is set.
func (g *Generator) Generate(ctx context.Context, coords tile.Coords, force bool, suffix string) (string, error) {
	if !coords.Valid() {
		return "", fmt.Errorf("invalid tile %s", coords)
	}

	var finalPath string
	if g.opts.TileWriter == nil {
		finalPath = g.TilePath(coords, suffix)
		if !force {
			if _, err := os.Stat(finalPath); err == nil {
				g.log().Debug("Tile already exists; skipping", "coords", coords.String(), "path", finalPath)
				return finalPath, nil
			}
		}
	}

	g.log().Debug("Rendering tile", "coords", coords.String(), "detail", g.DetailAt(coords.Z))
	data, err := g.Render(ctx, coords)
	if err != nil {
		return "", err
	}

	if g.opts.TileWriter != nil {
		if err := g.opts.TileWriter.WriteTile(int(coords.Z), int(coords.X), int(coords.Y), data); err != nil {
			return "", fmt.Errorf("failed to write tile %s: %w", coords, err)
		}
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(finalPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write tile file: %w", err)
	}
	g.log().Info("Wrote tile", "coords", coords.String(), "path", finalPath)

	return finalPath, nil
}

// Render returns the PNG bytes of a tile.
func (g *Generator) Render(ctx context.Context, coords tile.Coords) ([]byte, error) {
	node := g.node
	node.Detail = g.DetailAt(coords.Z)

	u0, v0, span := coords.Normalized()
	at := func(u, v float64) noise.Vec4 {
		p := g.plane
		p.X = (u0 + u*span) * g.worldScale
		p.Y = (v0 + v*span) * g.worldScale
		return p
	}

	px := g.tileSize * g.opts.Supersample
	img, err := texture.Rasterize(ctx, node, g.opts.Mode, px, px, g.opts.RowWorkers, at)
	if err != nil {
		return nil, fmt.Errorf("failed to render tile %s: %w", coords, err)
	}
	if g.opts.Supersample > 1 {
		img = texture.Downsample(img, g.tileSize, g.tileSize)
	}

	data, err := texture.EncodeBytes(img, g.opts.PNGCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tile %s: %w", coords, err)
	}
	return data, nil
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
