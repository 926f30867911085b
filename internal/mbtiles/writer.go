package mbtiles

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultBatchSize is the number of tiles buffered before a flush.
const DefaultBatchSize = 100

// TileEntry represents a single buffered tile.
type TileEntry struct {
	Data []byte // PNG data, gzip-compressed before storage
	Z    int
	X    int
	Y    int
}

// Writer writes tiles to an MBTiles database. It is safe for concurrent
// use, so worker pool tasks can share one Writer.
type Writer struct {
	db        *sql.DB
	path      string
	batch     []TileEntry
	metadata  Metadata
	batchSize int
	minZoom   int
	maxZoom   int
	written   int
	mu        sync.Mutex
}

// New creates an MBTiles writer. The database is created if needed, the
// schema initialized and metadata replaced.
func New(path string, metadata Metadata) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if err := writeMetadata(db, metadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to insert metadata: %w", err)
	}

	return &Writer{
		db:        db,
		path:      path,
		batch:     make([]TileEntry, 0, DefaultBatchSize),
		batchSize: DefaultBatchSize,
		metadata:  metadata,
		minZoom:   -1,
		maxZoom:   -1,
	}, nil
}

// SetBatchSize changes how many tiles are buffered between flushes.
func (w *Writer) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	w.mu.Lock()
	w.batchSize = n
	w.mu.Unlock()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// writeMetadata replaces all metadata rows, inserting keys in sorted order.
func writeMetadata(db *sql.DB, meta Metadata) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO metadata (name, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare metadata insert: %w", err)
	}
	defer stmt.Close()

	rows := meta.ToMap()
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := stmt.Exec(key, rows[key]); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}

	return tx.Commit()
}

// WriteTile buffers a tile, flushing when the batch is full. Coordinates
// are XYZ and stored as TMS.
func (w *Writer) WriteTile(z, x, y int, pngData []byte) error {
	if z < 0 || x < 0 || y < 0 || z > 30 || x >= 1<<z || y >= 1<<z {
		return fmt.Errorf("invalid tile %d/%d/%d", z, x, y)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch = append(w.batch, TileEntry{Z: z, X: x, Y: y, Data: pngData})
	if len(w.batch) >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// Flush writes any buffered tiles to the database.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// flushLocked writes buffered tiles in one transaction. Must be called
// with the lock held.
func (w *Writer) flushLocked() error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, tile := range w.batch {
		compressed, err := gzipCompress(tile.Data)
		if err != nil {
			return fmt.Errorf("failed to compress tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
		}
		if _, err := stmt.Exec(tile.Z, tile.X, flipY(tile.Z, tile.Y), compressed); err != nil {
			return fmt.Errorf("failed to insert tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, tile := range w.batch {
		if w.minZoom < 0 || tile.Z < w.minZoom {
			w.minZoom = tile.Z
		}
		if tile.Z > w.maxZoom {
			w.maxZoom = tile.Z
		}
	}
	w.written += len(w.batch)
	w.batch = w.batch[:0]
	return nil
}

// Written returns the number of tiles flushed so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes remaining tiles, records the zoom range actually written
// and closes the database.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		w.db.Close()
		return err
	}

	w.mu.Lock()
	minZoom, maxZoom := w.minZoom, w.maxZoom
	w.mu.Unlock()
	if minZoom >= 0 {
		if err := w.updateZoomRange(minZoom, maxZoom); err != nil {
			w.db.Close()
			return err
		}
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (w *Writer) updateZoomRange(minZoom, maxZoom int) error {
	for key, value := range map[string]int{keyMinZoom: minZoom, keyMaxZoom: maxZoom} {
		if _, err := w.db.Exec("DELETE FROM metadata WHERE name = ?", key); err != nil {
			return fmt.Errorf("failed to update %s: %w", key, err)
		}
		if _, err := w.db.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", key, strconv.Itoa(value)); err != nil {
			return fmt.Errorf("failed to update %s: %w", key, err)
		}
	}
	return nil
}

// flipY converts between XYZ and TMS rows.
func flipY(z, y int) int {
	return (1 << z) - 1 - y
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
