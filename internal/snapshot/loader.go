package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"b5-trader/internal/logger"
	"b5-trader/internal/types"
)

// Loader serves the producer's snapshot file with an mtime cache. The
// producer writes the file atomically, so a stat followed by a read is safe
// without writer coordination.
type Loader struct {
	path string

	mu      sync.RWMutex
	cached  *types.Snapshot
	version int64
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Version returns the snapshot version (file mtime in unix-nanos) without
// forcing a reload. 0 means no snapshot has ever been readable.
func (l *Loader) Version() int64 {
	info, err := os.Stat(l.path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}

// Load returns the current snapshot and its version. A missing or malformed
// file degrades to the empty snapshot with version 0; errors never propagate
// to callers.
func (l *Loader) Load(ctx context.Context) (*types.Snapshot, int64) {
	info, err := os.Stat(l.path)
	if err != nil {
		logger.Debug(ctx, "Snapshot file unavailable", "path", l.path, "error", err)
		return types.EmptySnapshot(), 0
	}
	version := info.ModTime().UnixNano()

	l.mu.RLock()
	if l.cached != nil && l.version == version {
		snap := l.cached
		l.mu.RUnlock()
		return snap, version
	}
	l.mu.RUnlock()

	b, err := os.ReadFile(l.path)
	if err != nil {
		logger.Debug(ctx, "Snapshot read failed", "path", l.path, "error", err)
		return types.EmptySnapshot(), 0
	}

	var snap types.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		logger.Warn(ctx, "Snapshot decode failed, serving empty", "path", l.path, "error", err)
		return types.EmptySnapshot(), 0
	}
	if snap.Day == "" {
		snap.Day = "-"
	}
	if snap.UpdatedAt == "" {
		snap.UpdatedAt = "-"
	}
	if snap.Rows == nil {
		snap.Rows = []types.BaseRow{}
	}

	l.mu.Lock()
	// A concurrent loader may have cached a newer file; keep the newest.
	if version >= l.version {
		l.cached = &snap
		l.version = version
	}
	l.mu.Unlock()

	return &snap, version
}

// FileInfo returns size and mtime of an arbitrary producer file (used for
// the ticks-file stats block). Zeroes when the file is absent.
func FileInfo(path string) (sizeBytes int64, mtimeUnix int64) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0
	}
	return info.Size(), info.ModTime().Unix()
}
