package levels

import (
	"context"
	"sync"
	"time"

	"b5-trader/internal/logger"
	"b5-trader/internal/snapshot"
	"b5-trader/internal/types"
)

// cache memoizes engine output per (snapshot version, timeframe, factor).
// A version change purges everything before the first insert for the new
// version, so no stale rows survive a snapshot flip.
type cache struct {
	version int64
	entries map[string]*Result
}

// Service is the single coordinator over the snapshot loader, the derived
// cache and the signal state: one writer recomputes, any number of readers
// see either the pre- or post-update result, never a torn one.
type Service struct {
	loader *snapshot.Loader
	engine *Engine

	mu    sync.Mutex
	cache cache
}

func NewService(loader *snapshot.Loader) *Service {
	return &Service{
		loader: loader,
		engine: NewEngine(),
		cache:  cache{entries: make(map[string]*Result)},
	}
}

// Version exposes the loader's current snapshot version.
func (s *Service) Version() int64 { return s.loader.Version() }

// StateSize reports retained signal-state entries (dashboard stats).
func (s *Service) StateSize() int { return s.engine.StateSize() }

// Snapshot returns the current snapshot without deriving rows.
func (s *Service) Snapshot(ctx context.Context) (*types.Snapshot, int64) {
	return s.loader.Load(ctx)
}

// Rows returns the derived result for (timeframe, factor) against the
// current snapshot, recomputing at most once per snapshot version.
func (s *Service) Rows(ctx context.Context, opts Options) (*Result, *types.Snapshot, int64) {
	snap, version := s.loader.Load(ctx)
	key := opts.ConfigKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	if version != s.cache.version {
		if len(s.cache.entries) > 0 {
			logger.Debug(ctx, "Derived cache purged",
				"old_version", s.cache.version, "new_version", version,
				"entries", len(s.cache.entries))
		}
		s.cache.entries = make(map[string]*Result)
		s.cache.version = version
	}

	if res, ok := s.cache.entries[key]; ok {
		return res, snap, version
	}

	started := time.Now()
	res := s.engine.Compute(snap.Rows, version/1e9, opts)
	s.cache.entries[key] = res

	logger.Debug(ctx, "Derived rows recomputed",
		"config", key, "version", version,
		"rows", len(res.All), "triggers", len(res.Trigger),
		"duration_ms", time.Since(started).Milliseconds())

	return res, snap, version
}
