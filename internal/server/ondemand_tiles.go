// Package server exposes noise tiles and point samples over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/turbulence/internal/pipeline"
	"github.com/MeKo-Tech/turbulence/internal/tile"
)

// HiDPISuffix marks tiles rendered at twice the base size.
const HiDPISuffix = "@2x"

// OnDemandTilesConfig configures OnDemandTiles.
type OnDemandTilesConfig struct {
	CacheControl             string
	MaxConcurrentGenerations int
	GenerationTimeout        time.Duration
	// GenerateMissing renders tiles that are not on disk yet.
	GenerateMissing bool
	// DisableCache re-renders every request.
	DisableCache bool
}

// OnDemandTiles serves tiles from the generator's output directory and
// renders missing ones, with at most MaxConcurrentGenerations renders in
// flight and one render per tile.
type OnDemandTiles struct {
	base   *pipeline.Generator
	logger *slog.Logger
	sem    chan struct{}
	locks  sync.Map
	gens   sync.Map
	cfg    OnDemandTilesConfig

	activeRenders  atomic.Int32
	totalRendered  atomic.Int64
	totalFailed    atomic.Int64
	currentRenders sync.Map // tile key -> start time

	queuedRenders atomic.Int32
	queuedTiles   sync.Map // tile key -> queue time
}

// TileStatus is the JSON document served by StatusHandler.
type TileStatus struct {
	Render RenderStatus `json:"render"`
}

// RenderStatus contains current render operation status.
type RenderStatus struct {
	ActiveRenders int      `json:"active_renders"`
	TotalRendered int64    `json:"total_rendered"`
	TotalFailed   int64    `json:"total_failed"`
	CurrentTiles  []string `json:"current_tiles"`
	MaxConcurrent int      `json:"max_concurrent"`
	QueuedRenders int      `json:"queued_renders"`
	QueuedTiles   []string `json:"queued_tiles"`
}

// NewOnDemandTiles serves tiles rendered by gen. @2x tiles are rendered by
// a copy of gen at twice its tile size.
func NewOnDemandTiles(gen *pipeline.Generator, cfg OnDemandTilesConfig, logger *slog.Logger) (*OnDemandTiles, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.MaxConcurrentGenerations <= 0 {
		cfg.MaxConcurrentGenerations = 1
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 2 * time.Minute
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}

	return &OnDemandTiles{
		base:   gen,
		cfg:    cfg,
		logger: logger,
		sem:    make(chan struct{}, cfg.MaxConcurrentGenerations),
	}, nil
}

// Status returns a snapshot of render activity.
func (t *OnDemandTiles) Status() TileStatus {
	return TileStatus{
		Render: RenderStatus{
			ActiveRenders: int(t.activeRenders.Load()),
			TotalRendered: t.totalRendered.Load(),
			TotalFailed:   t.totalFailed.Load(),
			CurrentTiles:  sortedKeys(&t.currentRenders),
			MaxConcurrent: t.cfg.MaxConcurrentGenerations,
			QueuedRenders: int(t.queuedRenders.Load()),
			QueuedTiles:   sortedKeys(&t.queuedTiles),
		},
	}
}

// StatusHandler serves Status as JSON.
func (t *OnDemandTiles) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Cache-Control", "no-store")

		if err := json.NewEncoder(w).Encode(t.Status()); err != nil {
			t.log().Error("failed to encode status", "error", err)
		}
	})
}

// StatusStreamHandler pushes Status as server-sent events every interval
// until the client disconnects.
func (t *OnDemandTiles) StatusStreamHandler(interval time.Duration) http.Handler {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		t.sendStatusEvent(w, flusher)
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				t.sendStatusEvent(w, flusher)
			}
		}
	})
}

func (t *OnDemandTiles) sendStatusEvent(w http.ResponseWriter, flusher http.Flusher) {
	data, err := json.Marshal(t.Status())
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// Handler serves GET /tiles/z{z}_x{x}_y{y}[@2x].png.
func (t *OnDemandTiles) Handler() http.Handler {
	return http.HandlerFunc(t.serveTile)
}

func (t *OnDemandTiles) serveTile(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	coords, suffix, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	gen, err := t.generator(suffix)
	if err != nil {
		t.log().Error("failed to init generator", "error", err)
		http.Error(w, "failed to init generator", http.StatusInternalServerError)
		return
	}

	key := coords.String() + suffix
	fullPath := gen.TilePath(coords, suffix)
	w.Header().Set("Cache-Control", t.cfg.CacheControl)

	if !t.cfg.DisableCache && fileExists(fullPath) {
		http.ServeFile(w, r, fullPath)
		return
	}
	if !t.cfg.GenerateMissing {
		http.Error(w, fmt.Sprintf("tile not found: %s", key), http.StatusNotFound)
		return
	}

	mu := t.lock(key)
	mu.Lock()
	defer mu.Unlock()

	// Another request may have rendered the tile while we waited.
	if !t.cfg.DisableCache && fileExists(fullPath) {
		http.ServeFile(w, r, fullPath)
		return
	}

	t.queuedRenders.Add(1)
	t.queuedTiles.Store(key, time.Now())
	select {
	case t.sem <- struct{}{}:
		t.queuedRenders.Add(-1)
		t.queuedTiles.Delete(key)
		defer func() { <-t.sem }()
	case <-r.Context().Done():
		t.queuedRenders.Add(-1)
		t.queuedTiles.Delete(key)
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), t.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	t.activeRenders.Add(1)
	t.currentRenders.Store(key, start)

	written, err := gen.Generate(ctx, coords, t.cfg.DisableCache, suffix)

	t.activeRenders.Add(-1)
	t.currentRenders.Delete(key)

	if err != nil {
		t.totalFailed.Add(1)
		t.log().Error("failed to generate tile", "coords", coords.String(), "suffix", suffix, "error", err)
		http.Error(w, fmt.Sprintf("failed to generate tile %s: %v", key, err), http.StatusInternalServerError)
		return
	}
	t.totalRendered.Add(1)
	t.log().Info("tile generated on-demand", "coords", coords.String(), "suffix", suffix, "ms", time.Since(start).Milliseconds())

	if !fileExists(written) {
		http.Error(w, "tile generation completed but file missing on disk", http.StatusInternalServerError)
		return
	}
	http.ServeFile(w, r, written)
}

func (t *OnDemandTiles) generator(suffix string) (*pipeline.Generator, error) {
	if suffix != HiDPISuffix {
		return t.base, nil
	}
	if v, ok := t.gens.Load(suffix); ok {
		return v.(*pipeline.Generator), nil
	}

	g, err := t.base.WithTileSize(t.base.TileSize() * 2)
	if err != nil {
		return nil, err
	}
	actual, _ := t.gens.LoadOrStore(suffix, g)
	return actual.(*pipeline.Generator), nil
}

func (t *OnDemandTiles) lock(key string) *sync.Mutex {
	if v, ok := t.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := t.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (t *OnDemandTiles) log() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	return slog.Default()
}

// parseTilePath parses /tiles/z{z}_x{x}_y{y}[@2x].png. Tiles outside the
// pyramid are rejected.
func parseTilePath(requestPath string) (tile.Coords, string, bool) {
	if !strings.HasPrefix(requestPath, "/tiles/") {
		return tile.Coords{}, "", false
	}
	base := path.Base(requestPath)
	if !strings.HasSuffix(base, ".png") {
		return tile.Coords{}, "", false
	}
	name := strings.TrimSuffix(base, ".png")
	suffix := ""
	if strings.HasSuffix(name, HiDPISuffix) {
		suffix = HiDPISuffix
		name = strings.TrimSuffix(name, HiDPISuffix)
	}

	coords, err := tile.ParseCoords(name)
	if err != nil || !coords.Valid() {
		return tile.Coords{}, "", false
	}
	return coords, suffix, true
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func sortedKeys(m *sync.Map) []string {
	keys := []string{}
	m.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !st.IsDir()
}
