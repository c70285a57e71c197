package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"b5-trader/internal/logger"
)

// Stats is the first-close DB summary shown on the dashboard.
type Stats struct {
	TodayRows      int `json:"today_rows"`
	HistoryRows    int `json:"history_rows"`
	PendingSymbols int `json:"pending_symbols"`
}

// Reader issues read-only queries against the producer's first-close DB.
// Any failure degrades to zero stats; the dashboard keeps rendering.
type Reader struct {
	db *sql.DB
}

// Open opens the DB read-only with the shared 2s busy timeout. A missing
// file is not an error here; queries will simply degrade.
func Open(path string) (*Reader, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=2000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open first-close db: %w", err)
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// StatsForDay reports row counts for the given trade day and the number of
// symbols whose history backfill is still pending.
func (r *Reader) StatsForDay(ctx context.Context, day string) Stats {
	var s Stats
	if r == nil || r.db == nil {
		return s
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM first_closes WHERE day = ?`, day,
	).Scan(&s.TodayRows); err != nil {
		logger.Debug(ctx, "first-close today count unavailable", "error", err)
		return Stats{}
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM first_closes WHERE day <> ?`, day,
	).Scan(&s.HistoryRows); err != nil {
		logger.Debug(ctx, "first-close history count unavailable", "error", err)
		s.HistoryRows = 0
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM history_state WHERE done = 0`,
	).Scan(&s.PendingSymbols); err != nil {
		logger.Debug(ctx, "history pending count unavailable", "error", err)
		s.PendingSymbols = 0
	}

	return s
}
