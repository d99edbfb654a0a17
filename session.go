// Package tiles is the orchestration layer: the small glue that binds a
// host's viewport-change callback and its render-frame tick to a
// Loader. Everything else — coordinate math, caching, the loading state
// machine — lives in the internal packages this wires together.
package tiles

import (
	"go.uber.org/zap"

	"github.com/garfik/gigaview-tiles/internal/tileloader"
	"github.com/garfik/gigaview-tiles/internal/tilemath"
)

// Session owns a Loader and exposes it to a host under the two calls
// the host drives: a viewport-change callback and a render-frame tick.
// The core does not run its own scheduling goroutine; the host decides
// when frames happen and calls OnFrame accordingly (its own vsync,
// a ticker, whatever it already has). Every other Loader method is
// promoted through embedding, so callers also read tiles and stats
// directly off the Session (GetTile, FindLoadedParent, GetCacheStats,
// ...).
type Session[T any] struct {
	*tileloader.Loader[T]
}

// New constructs a Session with its own Loader. A nil logger defaults
// to tileloader's own warn-level default, same as constructing a
// Loader directly.
func New[T any](cfg tileloader.Config, load tileloader.LoadTileFunc[T], size tileloader.SizeEstimator[T], log *zap.Logger) *Session[T] {
	return &Session[T]{
		Loader: tileloader.New(cfg, load, size, log),
	}
}

// OnViewportChanged feeds a new viewport into the loader. Call this
// from the host's own pan/zoom handler; debouncing happens inside the
// loader, so this call never blocks.
func (s *Session[T]) OnViewportChanged(bounds tilemath.Bounds, zoom int) {
	s.UpdateViewport(bounds, zoom)
}

// OnFrame starts as many queued loads as the per-frame pacing and
// concurrency limits allow. Call this once per render tick, driven by
// the host's own frame loop or vsync signal.
func (s *Session[T]) OnFrame() {
	s.ProcessQueue()
}
