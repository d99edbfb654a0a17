package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tiles "github.com/garfik/gigaview-tiles"
	"github.com/garfik/gigaview-tiles/internal/config"
	"github.com/garfik/gigaview-tiles/internal/logger"
	"github.com/garfik/gigaview-tiles/internal/tileloader"
	"github.com/garfik/gigaview-tiles/internal/tilemath"
)

// DemoTile is a synthetic decoded payload standing in for a real GPU
// texture; the core treats payloads as opaque, so any shape works here.
type DemoTile struct {
	Pixels []byte
}

func demoSizeEstimator(t DemoTile) int64 {
	return int64(len(t.Pixels))
}

// demoLoadTile simulates the out-of-scope COG byte-range fetch and
// GeoTIFF decode: a random latency and an occasional failure.
func demoLoadTile(log *zap.Logger) tileloader.LoadTileFunc[DemoTile] {
	return func(ctx context.Context, coord tilemath.Coord, generation int64) (DemoTile, error) {
		latency := time.Duration(20+rand.Intn(100)) * time.Millisecond
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return DemoTile{}, ctx.Err()
		}

		if rand.Intn(10) == 0 {
			return DemoTile{}, fmt.Errorf("simulated fetch failure for tile %s", coord.Key())
		}

		size := tileloader.CalculateTextureSize(256, 256, 4)
		log.Debug("loaded tile", zap.String("key", coord.Key()), zap.Int64("generation", generation), zap.Int64("size_bytes", size))
		return DemoTile{Pixels: make([]byte, size)}, nil
	}
}

// viewportStep is one entry in the scripted pan/zoom sequence the demo
// replays against the loader.
type viewportStep struct {
	bounds tilemath.Bounds
	zoom   int
	after  time.Duration
}

var script = []viewportStep{
	{bounds: tilemath.Bounds{West: -74.05, East: -73.9, North: 40.8, South: 40.7}, zoom: 10, after: 0},
	{bounds: tilemath.Bounds{West: -74.03, East: -73.88, North: 40.81, South: 40.71}, zoom: 10, after: 200 * time.Millisecond},
	{bounds: tilemath.Bounds{West: -74.0, East: -73.85, North: 40.82, South: 40.72}, zoom: 12, after: 600 * time.Millisecond},
	{bounds: tilemath.Bounds{West: -73.98, East: -73.83, North: 40.83, South: 40.73}, zoom: 12, after: 1200 * time.Millisecond},
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	sessionID := uuid.New().String()
	log.Info("starting gigaview tiles demo", zap.String("session_id", sessionID))

	loaderCfg := tileloader.Config{
		MaxConcurrentLoads: cfg.MaxConcurrentLoads,
		MaxStartsPerFrame:  cfg.MaxStartsPerFrame,
		PanDebounceMs:      cfg.PanDebounceMs,
		ZoomDebounceMs:     cfg.ZoomDebounceMs,
		CacheSizeMB:        cfg.CacheSizeMB,
		FadeDurationMs:     cfg.FadeDurationMs,
	}

	session := tiles.New(loaderCfg, demoLoadTile(log), demoSizeEstimator, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	g, ctx := errgroup.WithContext(ctx)

	frameInterval := time.Duration(cfg.FrameIntervalMs) * time.Millisecond

	// The demo is the host here: it owns the frame ticker and calls
	// OnFrame itself, matching the host-driven poll the core expects
	// instead of the core scheduling its own ticks.
	g.Go(func() error {
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				session.OnFrame()
			}
		}
	})

	g.Go(func() error {
		for _, step := range script {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(step.after):
			}
			session.OnViewportChanged(step.bounds, step.zoom)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cacheStats := session.GetCacheStats()
				loadStats := session.GetLoadingStats()
				log.Info("tile session stats",
					zap.String("session_id", sessionID),
					zap.Int64("generation", loadStats.Generation),
					zap.Int("queued", loadStats.Queued),
					zap.Int("in_flight", loadStats.InFlight),
					zap.Bool("is_zooming", loadStats.IsZooming),
					zap.Int("cache_entries", cacheStats.Entries),
					zap.Int64("cache_bytes", cacheStats.TotalBytes),
					zap.Int64("cache_hits", cacheStats.Hits),
					zap.Int64("cache_misses", cacheStats.Misses),
					zap.Int64("cache_evictions", cacheStats.Evictions),
				)
			}
		}
	})

	go func() {
		select {
		case <-quit:
			log.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := g.Wait(); err != nil {
		log.Error("demo session exited with error", zap.Error(err))
		os.Exit(1)
	}

	session.Close()
	log.Info("gigaview tiles demo stopped")
}
