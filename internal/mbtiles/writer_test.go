package mbtiles

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, meta Metadata) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "noise.mbtiles")
	w, err := New(path, meta)
	require.NoError(t, err)
	return w, path
}

func TestWriterNew(t *testing.T) {
	w, path := newTestWriter(t, Metadata{
		Name:        "perlin pyramid",
		Format:      "png",
		Description: "fractal turbulence",
		Extra:       map[string]string{"noise_detail": "2.5"},
	})
	defer w.Close()

	_, err := os.Stat(path)
	require.NoError(t, err)

	var count int
	require.NoError(t, w.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tiles'").Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, w.db.QueryRow("SELECT COUNT(*) FROM metadata").Scan(&count))
	assert.Equal(t, 4, count)

	var detail string
	require.NoError(t, w.db.QueryRow("SELECT value FROM metadata WHERE name='noise_detail'").Scan(&detail))
	assert.Equal(t, "2.5", detail)
}

func TestWriterStoresGzippedTMSRows(t *testing.T) {
	w, _ := newTestWriter(t, Metadata{Name: "t", Format: "png"})
	defer w.Close()

	payload := []byte("png bytes")
	require.NoError(t, w.WriteTile(3, 5, 1, payload))
	require.NoError(t, w.Flush())

	var stored []byte
	require.NoError(t, w.db.QueryRow(
		"SELECT tile_data FROM tiles WHERE zoom_level=3 AND tile_column=5 AND tile_row=?", 6,
	).Scan(&stored))

	gr, err := gzip.NewReader(bytes.NewReader(stored))
	require.NoError(t, err)
	plain, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestWriterBatchFlush(t *testing.T) {
	w, path := newTestWriter(t, Metadata{Name: "t", Format: "png"})
	w.SetBatchSize(16)

	for x := 0; x < 32; x++ {
		for y := 0; y < 5; y++ {
			require.NoError(t, w.WriteTile(5, x, y, []byte{byte(x), byte(y)}))
		}
	}
	assert.Equal(t, 160, w.Written(), "full batches flush automatically")

	require.NoError(t, w.WriteTile(0, 0, 0, []byte("root")))
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count))
	assert.Equal(t, 161, count)
}

func TestWriterReplaceExisting(t *testing.T) {
	w, _ := newTestWriter(t, Metadata{Name: "t", Format: "png"})
	defer w.Close()

	require.NoError(t, w.WriteTile(2, 1, 2, []byte("first")))
	require.NoError(t, w.Flush())
	require.NoError(t, w.WriteTile(2, 1, 2, []byte("second")))
	require.NoError(t, w.Flush())

	var count int
	require.NoError(t, w.db.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWriterRejectsInvalidTiles(t *testing.T) {
	w, _ := newTestWriter(t, Metadata{Name: "t"})
	defer w.Close()

	assert.Error(t, w.WriteTile(-1, 0, 0, nil))
	assert.Error(t, w.WriteTile(1, 2, 0, nil))
	assert.Error(t, w.WriteTile(1, 0, 2, nil))
	assert.Error(t, w.WriteTile(0, 0, -1, nil))
}

func TestWriterConcurrentWrites(t *testing.T) {
	w, path := newTestWriter(t, Metadata{Name: "t", Format: "png"})
	w.SetBatchSize(7)

	var wg sync.WaitGroup
	for x := 0; x < 8; x++ {
		wg.Add(1)
		go func(x int) {
			defer wg.Done()
			for y := 0; y < 8; y++ {
				assert.NoError(t, w.WriteTile(3, x, y, []byte{byte(x), byte(y)}))
			}
		}(x)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	n, err := r.TileCount()
	require.NoError(t, err)
	assert.Equal(t, 64, n)
}

func TestMetadataToMap(t *testing.T) {
	m := Metadata{
		Name:    "n",
		MinZoom: 0,
		MaxZoom: 4,
		Center:  [3]float64{1.5, -2.25, 3},
		Extra:   map[string]string{"name": "shadowed", "noise_scale": "5"},
	}

	rows := m.ToMap()
	assert.Equal(t, "n", rows["name"])
	assert.Equal(t, "5", rows["noise_scale"])
	assert.Equal(t, "4", rows["maxzoom"])
	assert.NotContains(t, rows, "minzoom")
	assert.NotContains(t, rows, "bounds")
	assert.Equal(t, "1.500000,-2.250000,3", rows["center"])
}

func TestParseMetadata(t *testing.T) {
	m := ParseMetadata(map[string]string{
		"name":            "n",
		"minzoom":         "1",
		"maxzoom":         "bogus",
		"bounds":          "-180,-85.0511,180,85.0511",
		"center":          "0,0",
		"noise_source":    "perlin",
		"noise_dimension": "3",
	})

	assert.Equal(t, "n", m.Name)
	assert.Equal(t, 1, m.MinZoom)
	assert.Zero(t, m.MaxZoom)
	assert.Equal(t, [4]float64{-180, -85.0511, 180, 85.0511}, m.Bounds)
	assert.Equal(t, [3]float64{}, m.Center, "center needs three values")
	assert.Equal(t, map[string]string{"noise_source": "perlin", "noise_dimension": "3"}, m.Extra)
}
