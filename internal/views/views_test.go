package views

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"b5-trader/internal/levels"
	"b5-trader/internal/paper"
	"b5-trader/internal/snapshot"
	"b5-trader/internal/store"
	"b5-trader/internal/types"
)

func testService(t *testing.T) (*Service, *paper.Store) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")

	body := `{"day":"2025-07-14","updated_at":"2025-07-14T11:00:00","row_count":3,"rows":[
		{"symbol":"NSE|1","tsym":"AAA","exchange":"NSE","ltp":100.9,"volume":5000,
		 "first_5m_close":100,"fetch_done":true},
		{"symbol":"NSE|2","tsym":"BBB","exchange":"NSE","ltp":100.05,"volume":9000,
		 "first_5m_close":100,"fetch_done":true},
		{"symbol":"NSE|3","tsym":"CCC","exchange":"NSE","ltp":95,"volume":100,
		 "first_5m_close":100,"fetch_done":false}],
		"status": {"ws_open": true}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	mt := time.Now().Add(-time.Minute)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}

	cfg, err := store.LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Paths.SnapshotFile = path

	st, err := paper.Open(filepath.Join(dir, "paper.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	lv := levels.NewService(snapshot.NewLoader(path))
	gov := paper.NewGovernor(st, cfg.Limits.MaxOrdersPerDay, cfg.Limits.MaxOpenPositions, cfg.Limits.MaxMarginUsedPct)
	return NewService(cfg, lv, nil, st, gov), st
}

func TestDashboardTriggerOnlyAndFilters(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	view, err := svc.Dashboard(ctx, DashboardParams{Timeframe: "5m", Factor: "micro", TriggerOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	// Only NSE|1 is in the up range and trending.
	if view.ShownCount != 1 || view.Rows[0].Symbol != "NSE|1" {
		t.Fatalf("trigger rows: %+v", view.Rows)
	}
	if view.ScanCount != 3 {
		t.Errorf("scan count = %d", view.ScanCount)
	}
	if view.Status.BrokerLimits.Status != types.LimitGreen {
		t.Errorf("limits status: %+v", view.Status.BrokerLimits)
	}
	if len(view.Status.Producer) == 0 {
		t.Error("producer status block must pass through")
	}

	// All rows without the trigger gate.
	view, err = svc.Dashboard(ctx, DashboardParams{Timeframe: "5m", Factor: "micro"})
	if err != nil {
		t.Fatal(err)
	}
	if view.ShownCount != 3 {
		t.Errorf("all rows: %d", view.ShownCount)
	}

	// fetch_done gate drops NSE|3.
	view, _ = svc.Dashboard(ctx, DashboardParams{Timeframe: "5m", Factor: "micro", CompleteOnly: true})
	if view.ShownCount != 2 {
		t.Errorf("complete-only rows: %d", view.ShownCount)
	}

	// Prefix search on tsym.
	view, _ = svc.Dashboard(ctx, DashboardParams{Timeframe: "5m", Factor: "micro", Query: "bb"})
	if view.ShownCount != 1 || view.Rows[0].Tsym != "BBB" {
		t.Errorf("query rows: %+v", view.Rows)
	}

	// Limit caps the row count.
	view, _ = svc.Dashboard(ctx, DashboardParams{Timeframe: "5m", Factor: "micro", Limit: 2})
	if view.ShownCount != 2 {
		t.Errorf("limited rows: %d", view.ShownCount)
	}
}

func TestDashboardDefaultsBadParams(t *testing.T) {
	svc, _ := testService(t)
	view, err := svc.Dashboard(context.Background(), DashboardParams{Timeframe: "7m", Factor: "huge", Limit: 999999})
	if err != nil {
		t.Fatal(err)
	}
	if view.Timeframe != "5m" || view.Factor != "smart" {
		t.Errorf("defaults not applied: tf=%s factor=%s", view.Timeframe, view.Factor)
	}
}

func TestTradesViewSummaryAndAnalysis(t *testing.T) {
	svc, st := testService(t)
	ctx := context.Background()

	open := &types.Trade{
		Symbol: "NSE|1", Tsym: "AAA", Exchange: "NSE", Day: "2025-07-14",
		EntryLTP: 100.0, EntryTs: "2025-07-14T10:00:00", Quantity: 1,
		Status: types.StatusOpen, UpdatedAt: "2025-07-14T10:00:00",
	}
	closedWin := &types.Trade{
		Symbol: "NSE|2", Tsym: "BBB", Exchange: "NSE", Day: "2025-07-14",
		EntryLTP: 100, ExitLTP: 102, EntryTs: "2025-07-14T09:30:00",
		ExitTs: "2025-07-14T10:30:00", Quantity: 1,
		PnL: 2, TotalCharges: 0.1, NetPnL: 1.9,
		Status: types.StatusClosed, UpdatedAt: "2025-07-14T10:30:00",
	}
	closedLoss := &types.Trade{
		Symbol: "NSE|3", Tsym: "CCC", Exchange: "NSE", Day: "2025-07-14",
		EntryLTP: 100, ExitLTP: 99, EntryTs: "2025-07-14T09:00:00",
		ExitTs: "2025-07-14T09:45:00", Quantity: 1,
		PnL: -1, TotalCharges: 0.1, NetPnL: -1.1,
		Status: types.StatusClosed, UpdatedAt: "2025-07-14T09:45:00",
	}
	for _, tr := range []*types.Trade{open, closedWin, closedLoss} {
		if _, err := st.InsertTrade(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	view, err := svc.Trades(ctx, TradesParams{})
	if err != nil {
		t.Fatal(err)
	}

	sum := view.Summary
	if sum.TotalTrades != 3 || sum.OpenCount != 1 || sum.ClosedCount != 2 {
		t.Fatalf("summary counts: %+v", sum)
	}
	if sum.Wins != 1 || sum.Losses != 1 || sum.WinRatePct != 50 {
		t.Errorf("win/loss: %+v", sum)
	}

	if len(view.Open) != 1 || view.Open[0].Symbol != "NSE|1" {
		t.Fatalf("open list: %+v", view.Open)
	}
	// Open trade enriched with the snapshot's current ltp.
	if view.Open[0].CurLTP != 100.9 {
		t.Errorf("cur ltp = %v", view.Open[0].CurLTP)
	}
	if diff := view.Open[0].CurPnL - 0.9; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cur pnl = %v", view.Open[0].CurPnL)
	}

	// Closed ordered by exit desc.
	if len(view.Closed) != 2 || view.Closed[0].Symbol != "NSE|2" {
		t.Errorf("closed order: %+v", view.Closed)
	}

	if len(view.Analysis.TopWinners) == 0 || view.Analysis.TopWinners[0].Symbol != "NSE|2" {
		t.Errorf("top winners: %+v", view.Analysis.TopWinners)
	}
	if len(view.Analysis.TopLosers) == 0 || view.Analysis.TopLosers[0].Symbol != "NSE|3" {
		t.Errorf("top losers: %+v", view.Analysis.TopLosers)
	}
	if len(view.Analysis.VolumeLeaders) == 0 || view.Analysis.VolumeLeaders[0].Symbol != "NSE|2" {
		t.Errorf("volume leaders: %+v", view.Analysis.VolumeLeaders)
	}
	// NSE|3 is down 5% vs first close: worst decliner.
	if len(view.Analysis.TopDecliners) == 0 || view.Analysis.TopDecliners[0].Symbol != "NSE|3" {
		t.Errorf("decliners: %+v", view.Analysis.TopDecliners)
	}

	// Query filters trades.
	view, err = svc.Trades(ctx, TradesParams{Query: "AAA"})
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary.TotalTrades != 1 || view.Summary.OpenCount != 1 {
		t.Errorf("query summary: %+v", view.Summary)
	}
}
