// Package tile provides Web Mercator z/x/y tile coordinates and their
// mapping into the normalized square the noise pyramid is sampled from.
package tile

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level accepted by Valid.
const MaxZoom = 24

// Coords represents a tile coordinate in the Web Mercator tile system (z/x/y)
type Coords struct {
	Z uint32 // Zoom level
	X uint32 // X coordinate (column)
	Y uint32 // Y coordinate (row)
}

// String returns the tile coordinate as a string in format "z{zoom}_x{x}_y{y}"
func (c Coords) String() string {
	return fmt.Sprintf("z%d_x%d_y%d", c.Z, c.X, c.Y)
}

// Path returns the flat file name for this tile, e.g. "z3_x1_y2.png".
func (c Coords) Path(extension string) string {
	return fmt.Sprintf("%s.%s", c.String(), extension)
}

// NestedPath returns "{z}/{x}/{y}{suffix}.{extension}" using the OS separator.
func (c Coords) NestedPath(suffix, extension string) string {
	return filepath.Join(
		strconv.FormatUint(uint64(c.Z), 10),
		strconv.FormatUint(uint64(c.X), 10),
		fmt.Sprintf("%d%s.%s", c.Y, suffix, extension),
	)
}

// Valid reports whether X and Y exist at zoom Z.
func (c Coords) Valid() bool {
	if c.Z > MaxZoom {
		return false
	}
	n := uint32(1) << c.Z
	return c.X < n && c.Y < n
}

// Tile returns the maptile.Tile for this coordinate
func (c Coords) Tile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Z))
}

// Bounds returns the geographic bounding box for this tile in WGS84 (EPSG:4326)
// Returns [minLon, minLat, maxLon, maxLat]
func (c Coords) Bounds() [4]float64 {
	bound := c.Tile().Bound()

	return [4]float64{
		bound.Min.Lon(),
		bound.Min.Lat(),
		bound.Max.Lon(),
		bound.Max.Lat(),
	}
}

// Center returns the center point of the tile in WGS84 (lon, lat)
func (c Coords) Center() (float64, float64) {
	bounds := c.Bounds()
	lon := (bounds[0] + bounds[2]) / 2.0
	lat := (bounds[1] + bounds[3]) / 2.0
	return lon, lat
}

// Normalized returns the tile's square in normalized Mercator space, where
// the whole world is [0,1]² with (0,0) at the north-west corner.
// (u, v) is the top left corner and span the side length, 2^-z.
func (c Coords) Normalized() (u, v, span float64) {
	n := float64(uint64(1) << c.Z)
	return float64(c.X) / n, float64(c.Y) / n, 1 / n
}

// NewCoords creates a new Coords from zoom, x, y values
func NewCoords(z, x, y uint32) Coords {
	return Coords{Z: z, X: x, Y: y}
}

// ParseCoords parses a tile string like "z13_x4297_y2754" into Coords
func ParseCoords(s string) (Coords, error) {
	var c Coords
	var rest string
	n, _ := fmt.Sscanf(s, "z%d_x%d_y%d%s", &c.Z, &c.X, &c.Y, &rest)
	if n < 3 || rest != "" {
		return Coords{}, fmt.Errorf("invalid tile coordinate format: %s", s)
	}
	return c, nil
}

// TilesInBBox returns all tile coordinates within a bounding box across a zoom range.
// bbox: [minLon, minLat, maxLon, maxLat] in WGS84
// Calculates correct tile coordinates at each zoom level independently.
func TilesInBBox(bbox [4]float64, zoomMin, zoomMax int) []Coords {
	tiles := make([]Coords, 0, TileCount(bbox, zoomMin, zoomMax))

	for z := zoomMin; z <= zoomMax; z++ {
		minX, maxX, minY, maxY := tileSpan(bbox, z)
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				tiles = append(tiles, NewCoords(uint32(z), x, y))
			}
		}
	}

	return tiles
}

// TileCount returns the number of tiles in a bounding box across a zoom range.
// This is useful for progress estimation without allocating the full tile list.
func TileCount(bbox [4]float64, zoomMin, zoomMax int) int {
	count := 0
	for z := zoomMin; z <= zoomMax; z++ {
		minX, maxX, minY, maxY := tileSpan(bbox, z)
		count += int(maxX-minX+1) * int(maxY-minY+1)
	}
	return count
}

// tileSpan returns the inclusive tile column and row range covering bbox at zoom z.
func tileSpan(bbox [4]float64, z int) (minX, maxX, minY, maxY uint32) {
	zoom := maptile.Zoom(z)
	minTile := maptile.At(orb.Point{bbox[0], bbox[1]}, zoom)
	maxTile := maptile.At(orb.Point{bbox[2], bbox[3]}, zoom)

	// Y grows southwards, so the min latitude gives the max row.
	minX, maxX = minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY = minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, maxX, minY, maxY
}
