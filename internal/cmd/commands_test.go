package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/turbulence/internal/mbtiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestSampleCommandPoint(t *testing.T) {
	out := execute(t, "sample", "--source", "perlin", "--seed", "7", "--detail", "3.5",
		"--x", "0.25", "--y", "1.75", "--grid", "0")

	assert.True(t, strings.HasPrefix(out, "fac="), out)
	assert.Contains(t, out, "color=(")
}

func TestSampleCommandGrid(t *testing.T) {
	out := execute(t, "sample", "--source", "simplex", "--dimensions", "2", "--grid", "8", "--span", "4")

	assert.Contains(t, out, "n=64")
	assert.Contains(t, out, "stddev=")
}

func TestGenerateAndConvert(t *testing.T) {
	dir := t.TempDir()
	tilesDir := filepath.Join(dir, "tiles")
	mbtilesPath := filepath.Join(dir, "noise.mbtiles")

	execute(t, "generate", "--output-dir", tilesDir, "--source", "simplex", "--detail", "2",
		"--bbox", "-179,-80,179,80", "--zoom-min", "0", "--zoom-max", "1",
		"--tile-size", "16", "--workers", "2", "--progress=false", "--folder-structure", "nested")

	for _, rel := range []string{"0/0/0.png", "1/0/0.png", "1/1/1.png"} {
		_, err := os.Stat(filepath.Join(tilesDir, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
	}

	execute(t, "convert", "--input-dir", tilesDir, "--output", mbtilesPath, "--source", "simplex")

	r, err := mbtiles.OpenReader(mbtilesPath)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.TileCount()
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	meta, err := r.Metadata()
	require.NoError(t, err)
	assert.Equal(t, 0, meta.MinZoom)
	assert.Equal(t, 1, meta.MaxZoom)
	assert.Equal(t, "simplex", meta.Extra["noise_source"])
}

func TestScanTilesDirectory(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"z2_x1_y3.png",
		"z2_x1_y3@2x.png",
		"z0_x0_y0.png",
		"z1_x5_y0.png", // outside the pyramid
		"notes.txt",
		filepath.Join("3", "4", "5.png"),
		filepath.Join("3", "4", "5@2x.png"),
	}
	for _, f := range files {
		path := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	}

	tiles, minZoom, maxZoom, err := scanTilesDirectory(dir, "")
	require.NoError(t, err)
	require.Len(t, tiles, 3)
	assert.Equal(t, 0, minZoom)
	assert.Equal(t, 3, maxZoom)
	assert.Equal(t, tileInfo{z: 0, x: 0, y: 0, path: filepath.Join(dir, "z0_x0_y0.png")}, tiles[0])
	assert.Equal(t, 3, tiles[2].z)

	hidpi, _, _, err := scanTilesDirectory(dir, "@2x")
	require.NoError(t, err)
	assert.Len(t, hidpi, 2)

	empty, minZoom, maxZoom, err := scanTilesDirectory(t.TempDir(), "")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Zero(t, minZoom)
	assert.Zero(t, maxZoom)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, true).Debug("shown", "octaves", 3)
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "octaves=3")
}
