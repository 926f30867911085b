// Package mbtiles reads and writes noise tile pyramids as MBTiles databases.
package mbtiles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTileNotFound is returned by Reader.ReadTile for missing tiles.
var ErrTileNotFound = errors.New("tile not found")

// Standard metadata keys. Every other key lands in Metadata.Extra.
const (
	keyName        = "name"
	keyFormat      = "format"
	keyAttribution = "attribution"
	keyDescription = "description"
	keyType        = "type"
	keyVersion     = "version"
	keyBounds      = "bounds"
	keyCenter      = "center"
	keyMinZoom     = "minzoom"
	keyMaxZoom     = "maxzoom"
)

// Metadata contains MBTiles metadata fields.
type Metadata struct {
	Name        string // Human-readable tileset identifier
	Format      string // Tile data type (png)
	Attribution string
	Description string
	Type        string // "baselayer" or "overlay"
	Version     string
	Bounds      [4]float64
	Center      [3]float64
	MinZoom     int
	MaxZoom     int
	// Extra holds additional rows, such as the noise node parameters the
	// tiles were rendered with.
	Extra map[string]string
}

// ToMap converts Metadata to name/value rows. Standard fields win over
// Extra entries with the same key.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string, len(m.Extra)+10)
	for k, v := range m.Extra {
		result[k] = v
	}

	set := func(key, value string) {
		if value != "" {
			result[key] = value
		}
	}
	set(keyName, m.Name)
	set(keyFormat, m.Format)
	set(keyAttribution, m.Attribution)
	set(keyDescription, m.Description)
	set(keyType, m.Type)
	set(keyVersion, m.Version)

	if m.MinZoom > 0 {
		result[keyMinZoom] = strconv.Itoa(m.MinZoom)
	}
	if m.MaxZoom > 0 {
		result[keyMaxZoom] = strconv.Itoa(m.MaxZoom)
	}
	if m.Bounds != [4]float64{} {
		result[keyBounds] = fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	}
	if m.Center != [3]float64{} {
		result[keyCenter] = fmt.Sprintf("%.6f,%.6f,%d",
			m.Center[0], m.Center[1], int(m.Center[2]))
	}

	return result
}

// ParseMetadata is the inverse of ToMap. Malformed numeric values are
// ignored.
func ParseMetadata(rows map[string]string) Metadata {
	meta := Metadata{
		Name:        rows[keyName],
		Format:      rows[keyFormat],
		Attribution: rows[keyAttribution],
		Description: rows[keyDescription],
		Type:        rows[keyType],
		Version:     rows[keyVersion],
	}

	if i, err := strconv.Atoi(rows[keyMinZoom]); err == nil {
		meta.MinZoom = i
	}
	if i, err := strconv.Atoi(rows[keyMaxZoom]); err == nil {
		meta.MaxZoom = i
	}
	parseFloats(rows[keyBounds], meta.Bounds[:])
	parseFloats(rows[keyCenter], meta.Center[:])

	for k, v := range rows {
		switch k {
		case keyName, keyFormat, keyAttribution, keyDescription, keyType, keyVersion,
			keyBounds, keyCenter, keyMinZoom, keyMaxZoom:
			continue
		}
		if meta.Extra == nil {
			meta.Extra = make(map[string]string)
		}
		meta.Extra[k] = v
	}

	return meta
}

// parseFloats fills dst from a comma separated list of exactly len(dst) values.
func parseFloats(s string, dst []float64) {
	parts := strings.Split(s, ",")
	if len(parts) != len(dst) {
		return
	}
	for i, part := range parts {
		if f, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
			dst[i] = f
		}
	}
}
