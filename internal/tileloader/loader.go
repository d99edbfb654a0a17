// Package tileloader implements the viewport-driven tile loader: it
// debounces view changes, enumerates and orders the visible tiles,
// queues missing keys, starts loads under a concurrency cap and a
// per-frame pacing limit, discards results superseded by a zoom change,
// and serves the renderer-facing read API (GetTile, FindLoadedParent,
// fade alpha, stats).
package tileloader

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/singleflight"

	"github.com/garfik/gigaview-tiles/internal/tilecache"
	"github.com/garfik/gigaview-tiles/internal/tilemath"
	"github.com/garfik/gigaview-tiles/internal/timer"
)

// State is a tile record's position in the loading state machine.
type State int

const (
	Pending State = iota
	Loading
	Loaded
	Error
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Record is a tile's loading state as tracked by the Loader.
type Record[T any] struct {
	Coord      tilemath.Coord
	Key        string
	State      State
	Payload    T
	Err        error
	LoadedAt   time.Time // zero means "never completed a load"
	Generation int64
}

// Config holds the Loader's tuning knobs; the zero value is not usable,
// use DefaultConfig as a base.
type Config struct {
	MaxConcurrentLoads int
	MaxStartsPerFrame  int
	PanDebounceMs      int
	ZoomDebounceMs     int
	CacheSizeMB        int
	FadeDurationMs     int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentLoads: 4,
		MaxStartsPerFrame:  2,
		PanDebounceMs:      50,
		ZoomDebounceMs:     150,
		CacheSizeMB:        50,
		FadeDurationMs:     250,
	}
}

// LoadTileFunc fetches and decodes a tile. It is opaque to the loader;
// the COG byte-range fetch and GeoTIFF parsing live behind this hook.
type LoadTileFunc[T any] func(ctx context.Context, coord tilemath.Coord, generation int64) (T, error)

// SizeEstimator reports a payload's cache weight in bytes.
type SizeEstimator[T any] func(payload T) int64

// DefaultSizeEstimator returns 1 MiB for every payload, a conservative
// fallback when the caller has no cheaper estimate.
func DefaultSizeEstimator[T any]() SizeEstimator[T] {
	return func(T) int64 { return 1 << 20 }
}

// CalculateTextureSize is a convenience SizeEstimator helper for raw
// texture payloads: width * height * bytesPerPixel. Callers with RGBA8
// textures pass bytesPerPixel = 4.
func CalculateTextureSize(width, height, bytesPerPixel int) int64 {
	return int64(width) * int64(height) * int64(bytesPerPixel)
}

// LoadFailedError wraps a LoadTileFunc failure with the coordinate and
// generation it was attempted under, so a renderer inspecting
// Record.Err can log or retry with context.
type LoadFailedError struct {
	Coord      tilemath.Coord
	Generation int64
	Err        error
}

func (e *LoadFailedError) Error() string {
	return "tileloader: load failed for " + e.Coord.Key() + ": " + e.Err.Error()
}

func (e *LoadFailedError) Unwrap() error { return e.Err }

// LoadingStats is a point-in-time snapshot of the loader's queue state.
type LoadingStats struct {
	Queued     int
	InFlight   int
	Generation int64
	IsZooming  bool
}

// Loader drives the PENDING -> LOADING -> LOADED/ERROR state machine for
// a single payload type T, keyed by the canonical tile key.
//
// Loader is safe for concurrent use. Each outstanding load runs in its
// own goroutine; the mutex serializes every mutation of the record map,
// queue, and in-flight set, so the loader behaves as a single control
// thread even though loads themselves run concurrently.
type Loader[T any] struct {
	mu sync.Mutex

	cfg    Config
	load   LoadTileFunc[T]
	sizeOf SizeEstimator[T]
	log    *zap.Logger
	clock  timer.Timer
	now    func() time.Time

	cache *tilecache.Cache[T]
	sf    singleflight.Group

	records  map[string]*Record[T]
	queue    []string
	queued   map[string]struct{}
	inFlight map[string]struct{}

	loadGeneration int64
	lastZoom       int
	hasZoom        bool
	isZooming      bool

	panTimer  timer.Handle
	zoomTimer timer.Handle

	// ctx is the background context every queue-driven LoadTileFunc call
	// runs under; Close cancels it so a LoadTileFunc that respects
	// ctx.Done() can abandon work promptly instead of running to
	// completion uselessly.
	ctx    context.Context
	cancel context.CancelFunc

	closed bool
}

// defaultLogger builds a warn-level JSON logger for callers that don't
// wire one in, matching internal/logger's own discard-below-warn
// default without taking a dependency on that package.
func defaultLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// New constructs a Loader. A nil size estimates payloads at 1 MiB; a nil
// logger defaults to warn level rather than discarding output outright.
func New[T any](cfg Config, load LoadTileFunc[T], size SizeEstimator[T], log *zap.Logger) *Loader[T] {
	if size == nil {
		size = DefaultSizeEstimator[T]()
	}
	if log == nil {
		log = defaultLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader[T]{
		cfg:      cfg,
		load:     load,
		sizeOf:   size,
		log:      log,
		clock:    timer.New(),
		now:      time.Now,
		cache:    tilecache.New[T](cfg.CacheSizeMB),
		records:  make(map[string]*Record[T]),
		queued:   make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// UpdateViewport ingests a new viewport. A zoom change bumps the
// generation synchronously; the actual re-enumeration is debounced.
func (l *Loader[T]) UpdateViewport(bounds tilemath.Bounds, zoom int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	zoomChanged := !l.hasZoom || zoom != l.lastZoom
	if zoomChanged {
		l.handleZoomChangeLocked(zoom)
	}

	if l.panTimer != nil {
		l.panTimer.Stop()
		l.panTimer = nil
	}

	if zoomChanged {
		if l.zoomTimer != nil {
			l.zoomTimer.Stop()
		}
		l.isZooming = true
		l.zoomTimer = l.clock.Arm(time.Duration(l.cfg.ZoomDebounceMs)*time.Millisecond, func() {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				return
			}
			l.isZooming = false
			l.zoomTimer = nil
			l.mu.Unlock()
			l.ProcessViewChange(bounds, zoom)
		})
		return
	}

	if l.zoomTimer != nil {
		l.zoomTimer.Stop()
		l.zoomTimer = nil
		l.isZooming = false
	}
	l.panTimer = l.clock.Arm(time.Duration(l.cfg.PanDebounceMs)*time.Millisecond, func() {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		l.panTimer = nil
		l.mu.Unlock()
		l.ProcessViewChange(bounds, zoom)
	})
}

// handleZoomChangeLocked bumps the generation, clears the queue, and
// discards cache entries and in-flight results from older generations.
// Callers must hold l.mu.
func (l *Loader[T]) handleZoomChangeLocked(newZoom int) {
	l.loadGeneration++
	l.lastZoom = newZoom
	l.hasZoom = true

	l.queue = nil
	l.queued = make(map[string]struct{})

	l.cache.InvalidateOldGenerations(l.loadGeneration)

	for key := range l.inFlight {
		rec, ok := l.records[key]
		if !ok || rec.Generation >= l.loadGeneration {
			continue
		}
		rec.State = Pending
		delete(l.inFlight, key)
	}
}

// ProcessViewChange enumerates the visible tiles for bounds/zoom in
// center-out priority order and enqueues every key not already cached,
// queued, or in flight.
func (l *Loader[T]) ProcessViewChange(bounds tilemath.Bounds, zoom int) {
	visible := tilemath.GetVisibleTiles(bounds, zoom)
	center := tilemath.GetViewportCenterTile(bounds, zoom)
	ordered := tilemath.PrioritizeTilesSort(visible, center)

	l.mu.Lock()
	defer l.mu.Unlock()

	currentGen := l.loadGeneration
	for _, coord := range ordered {
		key := coord.Key()

		if l.cache.Has(key) {
			continue
		}
		if _, ok := l.queued[key]; ok {
			continue
		}
		if _, ok := l.inFlight[key]; ok {
			continue
		}

		rec, ok := l.records[key]
		if !ok {
			rec = &Record[T]{Coord: coord, Key: key}
			l.records[key] = rec
		}
		var zero T
		rec.State = Pending
		rec.Generation = currentGen
		rec.Payload = zero
		rec.Err = nil
		rec.LoadedAt = time.Time{}

		l.queue = append(l.queue, key)
		l.queued[key] = struct{}{}
	}
}

// ProcessQueue starts up to MaxStartsPerFrame new loads, bounded by
// MaxConcurrentLoads, and is a no-op while a zoom debounce is pending.
// Call once per render tick.
func (l *Loader[T]) ProcessQueue() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isZooming {
		return
	}

	starts := 0
	for starts < l.cfg.MaxStartsPerFrame && len(l.queue) > 0 && len(l.inFlight) < l.cfg.MaxConcurrentLoads {
		key := l.queue[0]
		l.queue = l.queue[1:]
		delete(l.queued, key)

		rec, ok := l.records[key]
		if !ok || rec.Generation != l.loadGeneration || rec.State != Pending {
			continue
		}

		l.startTileLoadLocked(rec)
		starts++
	}
}

// startTileLoadLocked transitions rec to LOADING and spawns the load.
// Callers must hold l.mu.
func (l *Loader[T]) startTileLoadLocked(rec *Record[T]) {
	rec.State = Loading
	l.inFlight[rec.Key] = struct{}{}

	key := rec.Key
	coord := rec.Coord
	gen := rec.Generation

	go l.runLoad(key, coord, gen)
}

// runLoad performs the external load under the Loader's own background
// context. loadAndApply applies the result to the record and cache; its
// return values are not needed here and are dropped.
func (l *Loader[T]) runLoad(key string, coord tilemath.Coord, gen int64) {
	l.loadAndApply(l.ctx, key, coord, gen)
}

// loadAndApply invokes LoadTile for (coord, gen) and, on return, applies
// the result only if gen is still current. The singleflight key
// includes the generation so a re-queued tile after a zoom change
// always issues its own LoadTile call rather than riding along on a
// still-running call from a superseded generation; within one
// generation, a ForceLoad racing a queue-started load for the same key
// shares the single in-flight call instead of duplicating it.
func (l *Loader[T]) loadAndApply(ctx context.Context, key string, coord tilemath.Coord, gen int64) (T, error) {
	sfKey := key + "@" + strconv.FormatInt(gen, 10)
	v, err, _ := l.sf.Do(sfKey, func() (interface{}, error) {
		return l.load(ctx, coord, gen)
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.inFlight, key)

	var zero T
	if gen != l.loadGeneration {
		l.log.Debug("discarding stale load result", zap.String("key", key), zap.Int64("generation", gen), zap.Int64("current_generation", l.loadGeneration))
		if err != nil {
			return zero, err
		}
		return v.(T), nil
	}

	rec, ok := l.records[key]
	if !ok {
		if err != nil {
			return zero, err
		}
		return v.(T), nil
	}

	if err != nil {
		rec.State = Error
		rec.Err = &LoadFailedError{Coord: coord, Generation: gen, Err: err}
		l.log.Debug("tile load failed", zap.String("key", key), zap.Error(err))
		return zero, err
	}

	payload := v.(T)
	rec.Payload = payload
	rec.State = Loaded
	rec.LoadedAt = l.now()

	l.cache.Set(key, payload, l.sizeOf(payload), gen)
	return payload, nil
}

// removeFromQueueLocked drops key from the pending queue, if present.
// Callers must hold l.mu.
func (l *Loader[T]) removeFromQueueLocked(key string) {
	for i, k := range l.queue {
		if k == key {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

// ForceLoad loads a tile outside the queue's pacing and concurrency
// limits, for a caller that needs a specific tile immediately (for
// example a renderer resolving the tile directly under a placed
// marker). A cache hit returns synchronously; otherwise ForceLoad joins
// the queue's in-flight call for the same key and generation if one is
// already running, rather than issuing a second LoadTile call for the
// same (key, gen) pair.
func (l *Loader[T]) ForceLoad(ctx context.Context, key string) (T, error) {
	l.mu.Lock()

	if payload, ok := l.cache.Get(key); ok {
		l.mu.Unlock()
		return payload, nil
	}

	coord, ok := tilemath.ParseTileKey(key)
	if !ok {
		l.mu.Unlock()
		var zero T
		return zero, fmt.Errorf("tileloader: malformed tile key %q", key)
	}

	rec, exists := l.records[key]
	if !exists {
		rec = &Record[T]{Coord: coord, Key: key}
		l.records[key] = rec
	}

	gen := rec.Generation
	if _, inFlight := l.inFlight[key]; !inFlight {
		gen = l.loadGeneration
		l.removeFromQueueLocked(key)
		delete(l.queued, key)
		rec.State = Loading
		rec.Generation = gen
		l.inFlight[key] = struct{}{}
	}
	l.mu.Unlock()

	return l.loadAndApply(ctx, key, coord, gen)
}

// GetTile returns the tile's current record, preferring a cache hit
// (reflected into the record as LOADED) over the record map's own
// bookkeeping state.
func (l *Loader[T]) GetTile(key string) (Record[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if payload, ok := l.cache.Get(key); ok {
		rec, exists := l.records[key]
		if !exists {
			coord, _ := tilemath.ParseTileKey(key)
			rec = &Record[T]{Coord: coord, Key: key}
			l.records[key] = rec
		}
		rec.State = Loaded
		rec.Payload = payload
		return *rec, true
	}

	rec, ok := l.records[key]
	if !ok {
		return Record[T]{}, false
	}
	return *rec, true
}

// GetLoadedTiles returns every record currently in the LOADED state.
func (l *Loader[T]) GetLoadedTiles() []Record[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record[T], 0, len(l.records))
	for _, rec := range l.records {
		if rec.State == Loaded {
			out = append(out, *rec)
		}
	}
	return out
}

// FindLoadedParent walks the parent chain above coord and returns the
// nearest ancestor that is loaded, consulting the cache first.
func (l *Loader[T]) FindLoadedParent(coord tilemath.Coord) (Record[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := coord
	for {
		parent, ok := tilemath.GetParentTile(cur)
		if !ok {
			return Record[T]{}, false
		}
		key := parent.Key()

		if payload, ok := l.cache.Get(key); ok {
			rec, exists := l.records[key]
			var r Record[T]
			if exists {
				r = *rec
			} else {
				r = Record[T]{Coord: parent, Key: key}
			}
			r.State = Loaded
			r.Payload = payload
			return r, true
		}
		if rec, exists := l.records[key]; exists && rec.State == Loaded {
			return *rec, true
		}
		cur = parent
	}
}

// GetTileFadeAlpha returns the [0,1] fade ramp for a record, advisory
// only: the core does not interpret it.
func (l *Loader[T]) GetTileFadeAlpha(rec Record[T]) float64 {
	if rec.LoadedAt.IsZero() {
		return 1
	}
	elapsedMs := float64(l.now().Sub(rec.LoadedAt).Milliseconds())
	alpha := elapsedMs / float64(l.cfg.FadeDurationMs)
	if alpha > 1 {
		return 1
	}
	if alpha < 0 {
		return 0
	}
	return alpha
}

// GetCacheStats returns the underlying cache's statistics snapshot.
func (l *Loader[T]) GetCacheStats() tilecache.Stats {
	return l.cache.Stats()
}

// GetLoadingStats returns a snapshot of the queue/in-flight/generation
// state.
func (l *Loader[T]) GetLoadingStats() LoadingStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LoadingStats{
		Queued:     len(l.queue),
		InFlight:   len(l.inFlight),
		Generation: l.loadGeneration,
		IsZooming:  l.isZooming,
	}
}

// GetQueuedKeys returns a snapshot of keys currently queued, in queue
// order. Diagnostic only.
func (l *Loader[T]) GetQueuedKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.queue))
	copy(out, l.queue)
	return out
}

// GetInFlightKeys returns a snapshot of keys currently in flight, in no
// particular order. Diagnostic only.
func (l *Loader[T]) GetInFlightKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.inFlight))
	for key := range l.inFlight {
		out = append(out, key)
	}
	return out
}

// Clear resets the loader: empty queue, empty in-flight set, empty
// record map, empty cache, no zoom recorded. The generation is advanced
// rather than reset, so it never decreases. Outstanding goroutines from
// loads started before Clear will still run to completion but their
// generation will no longer match, so their results are discarded on
// return.
func (l *Loader[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.panTimer != nil {
		l.panTimer.Stop()
		l.panTimer = nil
	}
	if l.zoomTimer != nil {
		l.zoomTimer.Stop()
		l.zoomTimer = nil
	}

	l.records = make(map[string]*Record[T])
	l.queue = nil
	l.queued = make(map[string]struct{})
	l.inFlight = make(map[string]struct{})
	l.loadGeneration++
	l.lastZoom = 0
	l.hasZoom = false
	l.isZooming = false
	l.cache.Clear()
}

// Close cancels any pending debounce timers, cancels the Loader's
// background context so a LoadTileFunc that respects ctx.Done() can
// abandon its work, and bumps the generation so that even a
// LoadTileFunc that ignores cancellation has its result discarded on
// return rather than applied to the record map or cache.
func (l *Loader[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.panTimer != nil {
		l.panTimer.Stop()
		l.panTimer = nil
	}
	if l.zoomTimer != nil {
		l.zoomTimer.Stop()
		l.zoomTimer = nil
	}
	l.closed = true
	l.loadGeneration++
	l.cancel()
}
