package paper

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"b5-trader/internal/logger"
	"b5-trader/internal/types"
)

// Store persists paper trades and the per-day broker-limit counters. The
// engine is the only writer; views read concurrently (WAL).
type Store struct {
	db *sql.DB
}

// tradeColumns is the canonical column set, in insert/scan order after id.
var tradeColumns = []string{
	"symbol", "tsym", "exchange", "day", "timeframe", "factor", "instrument_type",
	"close_price", "points",
	"bu1", "bu2", "bu3", "bu4", "bu5",
	"be1", "be2", "be3", "be4", "be5",
	"sl_price", "tp_price", "tsl_trigger", "tsl_active", "tsl_sl_price",
	"entry_ltp", "entry_ts", "exit_ltp", "exit_ts", "quantity", "reason",
	"last_ltp", "max_ltp", "min_ltp", "runup", "drawdown", "max_profit_points",
	"pnl", "pnl_pct",
	"brokerage", "stt", "exchange_charges", "sebi_charges", "stamp_duty", "gst",
	"total_charges", "net_pnl",
	"status", "updated_at",
}

// minimalColumns is the degraded insert set used when the live table
// predates the full schema and migration could not repair it.
var minimalColumns = []string{
	"symbol", "day", "entry_ltp", "entry_ts", "quantity", "reason", "status", "updated_at",
}

// Open opens (creating if needed) the paper-trade DB and runs migration.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=2000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open paper db: %w", err)
	}
	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate is idempotent: it creates the tables when absent and adds any
// canonical column the live table lacks. Safe to run on every startup and
// again after a schema-drift write failure.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS paper_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			tsym TEXT DEFAULT '',
			exchange TEXT DEFAULT '',
			day TEXT DEFAULT '',
			timeframe TEXT DEFAULT '',
			factor TEXT DEFAULT '',
			instrument_type TEXT DEFAULT '',
			close_price REAL DEFAULT 0,
			points REAL DEFAULT 0,
			bu1 REAL DEFAULT 0, bu2 REAL DEFAULT 0, bu3 REAL DEFAULT 0,
			bu4 REAL DEFAULT 0, bu5 REAL DEFAULT 0,
			be1 REAL DEFAULT 0, be2 REAL DEFAULT 0, be3 REAL DEFAULT 0,
			be4 REAL DEFAULT 0, be5 REAL DEFAULT 0,
			sl_price REAL DEFAULT 0,
			tp_price REAL DEFAULT 0,
			tsl_trigger REAL DEFAULT 0,
			tsl_active INTEGER DEFAULT 0,
			tsl_sl_price REAL DEFAULT 0,
			entry_ltp REAL DEFAULT 0,
			entry_ts TEXT DEFAULT '',
			exit_ltp REAL DEFAULT 0,
			exit_ts TEXT DEFAULT '',
			quantity INTEGER DEFAULT 1,
			reason TEXT DEFAULT '',
			last_ltp REAL DEFAULT 0,
			max_ltp REAL DEFAULT 0,
			min_ltp REAL DEFAULT 0,
			runup REAL DEFAULT 0,
			drawdown REAL DEFAULT 0,
			max_profit_points REAL DEFAULT 0,
			pnl REAL DEFAULT 0,
			pnl_pct REAL DEFAULT 0,
			brokerage REAL DEFAULT 0,
			stt REAL DEFAULT 0,
			exchange_charges REAL DEFAULT 0,
			sebi_charges REAL DEFAULT 0,
			stamp_duty REAL DEFAULT 0,
			gst REAL DEFAULT 0,
			total_charges REAL DEFAULT 0,
			net_pnl REAL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'OPEN',
			updated_at TEXT DEFAULT ''
		)`); err != nil {
		return fmt.Errorf("create paper_trades: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS broker_limits (
			day TEXT PRIMARY KEY,
			orders_placed INTEGER NOT NULL DEFAULT 0,
			open_positions INTEGER NOT NULL DEFAULT 0,
			margin_used REAL NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		return fmt.Errorf("create broker_limits: %w", err)
	}

	if err := s.addMissingColumns(ctx); err != nil {
		return err
	}

	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_paper_trades_status ON paper_trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_paper_trades_symbol ON paper_trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_paper_trades_day ON paper_trades(day)`,
	} {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// addMissingColumns aligns an older table with the canonical column set.
func (s *Store) addMissingColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(paper_trades)`)
	if err != nil {
		return fmt.Errorf("table_info: %w", err)
	}
	defer rows.Close()

	have := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range tradeColumns {
		if have[col] {
			continue
		}
		def := "REAL DEFAULT 0"
		switch col {
		case "symbol", "tsym", "exchange", "day", "timeframe", "factor",
			"instrument_type", "entry_ts", "exit_ts", "reason", "status", "updated_at":
			def = "TEXT DEFAULT ''"
		case "tsl_active", "quantity":
			def = "INTEGER DEFAULT 0"
		}
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`ALTER TABLE paper_trades ADD COLUMN %s %s`, col, def)); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

func tradeValues(t *types.Trade) []any {
	return []any{
		t.Symbol, t.Tsym, t.Exchange, t.Day, t.Timeframe, t.Factor, t.InstrumentType,
		t.ClosePrice, t.Points,
		t.BU1, t.BU2, t.BU3, t.BU4, t.BU5,
		t.BE1, t.BE2, t.BE3, t.BE4, t.BE5,
		t.SLPrice, t.TPPrice, t.TSLTrigger, boolToInt(t.TSLActive), t.TSLSLPrice,
		t.EntryLTP, t.EntryTs, t.ExitLTP, t.ExitTs, t.Quantity, t.Reason,
		t.LastLTP, t.MaxLTP, t.MinLTP, t.Runup, t.Drawdown, t.MaxProfitPoints,
		t.PnL, t.PnLPct,
		t.Brokerage, t.STT, t.ExchangeCharges, t.SEBICharges, t.StampDuty, t.GST,
		t.TotalCharges, t.NetPnL,
		t.Status, t.UpdatedAt,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isSchemaDrift matches sqlite's unknown-column errors.
func isSchemaDrift(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such column") || strings.Contains(msg, "has no column named")
}

// InsertTrade persists a new trade. On a schema-drift error it migrates and
// retries once, then degrades to the minimal column set.
func (s *Store) InsertTrade(ctx context.Context, t *types.Trade) (int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tradeColumns)), ",")
	q := fmt.Sprintf(`INSERT INTO paper_trades (%s) VALUES (%s)`,
		strings.Join(tradeColumns, ","), placeholders)

	res, err := s.db.ExecContext(ctx, q, tradeValues(t)...)
	if isSchemaDrift(err) {
		logger.Debug(ctx, "paper_trades schema drift on insert, migrating", "error", err)
		if merr := s.Migrate(ctx); merr == nil {
			res, err = s.db.ExecContext(ctx, q, tradeValues(t)...)
		}
	}
	if isSchemaDrift(err) {
		logger.Debug(ctx, "paper_trades degrade to minimal insert", "error", err)
		q = fmt.Sprintf(`INSERT INTO paper_trades (%s) VALUES (?,?,?,?,?,?,?,?)`,
			strings.Join(minimalColumns, ","))
		res, err = s.db.ExecContext(ctx, q,
			t.Symbol, t.Day, t.EntryLTP, t.EntryTs, t.Quantity, t.Reason, t.Status, t.UpdatedAt)
	}
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert trade id: %w", err)
	}
	t.ID = id
	return id, nil
}

// UpdateTrade rewrites a trade row by id, with the same drift tolerance.
func (s *Store) UpdateTrade(ctx context.Context, t *types.Trade) error {
	sets := make([]string, len(tradeColumns))
	for i, c := range tradeColumns {
		sets[i] = c + "=?"
	}
	q := fmt.Sprintf(`UPDATE paper_trades SET %s WHERE id=?`, strings.Join(sets, ","))
	args := append(tradeValues(t), t.ID)

	_, err := s.db.ExecContext(ctx, q, args...)
	if isSchemaDrift(err) {
		logger.Debug(ctx, "paper_trades schema drift on update, migrating", "error", err)
		if merr := s.Migrate(ctx); merr == nil {
			_, err = s.db.ExecContext(ctx, q, args...)
		}
	}
	if isSchemaDrift(err) {
		logger.Debug(ctx, "paper_trades degrade to minimal update", "error", err)
		_, err = s.db.ExecContext(ctx,
			`UPDATE paper_trades SET last_ltp=?, exit_ltp=?, exit_ts=?, pnl=?, status=?, updated_at=? WHERE id=?`,
			t.LastLTP, t.ExitLTP, t.ExitTs, t.PnL, t.Status, t.UpdatedAt, t.ID)
	}
	if err != nil {
		return fmt.Errorf("update trade %d: %w", t.ID, err)
	}
	return nil
}

func (s *Store) scanTrades(rows *sql.Rows) ([]types.Trade, error) {
	defer rows.Close()
	var out []types.Trade
	for rows.Next() {
		var t types.Trade
		var tslActive int
		if err := rows.Scan(
			&t.ID,
			&t.Symbol, &t.Tsym, &t.Exchange, &t.Day, &t.Timeframe, &t.Factor, &t.InstrumentType,
			&t.ClosePrice, &t.Points,
			&t.BU1, &t.BU2, &t.BU3, &t.BU4, &t.BU5,
			&t.BE1, &t.BE2, &t.BE3, &t.BE4, &t.BE5,
			&t.SLPrice, &t.TPPrice, &t.TSLTrigger, &tslActive, &t.TSLSLPrice,
			&t.EntryLTP, &t.EntryTs, &t.ExitLTP, &t.ExitTs, &t.Quantity, &t.Reason,
			&t.LastLTP, &t.MaxLTP, &t.MinLTP, &t.Runup, &t.Drawdown, &t.MaxProfitPoints,
			&t.PnL, &t.PnLPct,
			&t.Brokerage, &t.STT, &t.ExchangeCharges, &t.SEBICharges, &t.StampDuty, &t.GST,
			&t.TotalCharges, &t.NetPnL,
			&t.Status, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		t.TSLActive = tslActive != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) selectTrades(ctx context.Context, where string, order string, limit int, args ...any) ([]types.Trade, error) {
	q := fmt.Sprintf(`SELECT id,%s FROM paper_trades`, strings.Join(tradeColumns, ","))
	if where != "" {
		q += " WHERE " + where
	}
	if order != "" {
		q += " ORDER BY " + order
	}
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select trades: %w", err)
	}
	return s.scanTrades(rows)
}

// OpenTrades returns every OPEN trade, most recently updated first.
func (s *Store) OpenTrades(ctx context.Context, limit int) ([]types.Trade, error) {
	return s.selectTrades(ctx, "status = ?", "updated_at DESC, id DESC", limit, types.StatusOpen)
}

// ClosedTrades returns CLOSED trades ordered by exit time descending.
func (s *Store) ClosedTrades(ctx context.Context, limit int) ([]types.Trade, error) {
	return s.selectTrades(ctx, "status = ?", "exit_ts DESC, id DESC", limit, types.StatusClosed)
}

// AllTrades returns the full history (export), newest entries first.
func (s *Store) AllTrades(ctx context.Context) ([]types.Trade, error) {
	return s.selectTrades(ctx, "", "id DESC", 0)
}

// OpenExposure reports count and notional margin of OPEN trades for a day.
func (s *Store) OpenExposure(ctx context.Context, day string) (count int, margin float64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(entry_ltp * quantity), 0)
		 FROM paper_trades WHERE status = ? AND day = ?`,
		types.StatusOpen, day,
	).Scan(&count, &margin)
	if err != nil {
		return 0, 0, fmt.Errorf("open exposure: %w", err)
	}
	return count, margin, nil
}

// OrdersPlaced returns the day's order counter (0 when the day is unseen).
func (s *Store) OrdersPlaced(ctx context.Context, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(orders_placed, 0) FROM broker_limits WHERE day = ?`, day,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("orders placed: %w", err)
	}
	return n, nil
}

// RecordOrder bumps the day's monotone order counter and refreshes the
// derived open-position snapshot columns.
func (s *Store) RecordOrder(ctx context.Context, day, nowISO string) error {
	open, margin, err := s.OpenExposure(ctx, day)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO broker_limits (day, orders_placed, open_positions, margin_used, updated_at)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			orders_placed = orders_placed + 1,
			open_positions = excluded.open_positions,
			margin_used = excluded.margin_used,
			updated_at = excluded.updated_at`,
		day, open, margin, nowISO)
	if err != nil {
		return fmt.Errorf("record order: %w", err)
	}
	return nil
}
