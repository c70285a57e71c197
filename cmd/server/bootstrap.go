package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"b5-trader/internal/broker/brokerobs"
	"b5-trader/internal/broker/noop"
	"b5-trader/internal/broker/zerodha"
	"b5-trader/internal/history"
	"b5-trader/internal/interfaces"
	"b5-trader/internal/levels"
	"b5-trader/internal/logger"
	"b5-trader/internal/paper"
	"b5-trader/internal/paper/paperobs"
	"b5-trader/internal/server"
	"b5-trader/internal/snapshot"
	"b5-trader/internal/store"
	"b5-trader/internal/trace"
	"b5-trader/internal/tradelog"
	"b5-trader/internal/views"
)

// app bundles everything main needs to run and tear down.
type app struct {
	cfg    *store.Config
	engine interfaces.Engine
	server *server.Server

	paperStore *paper.Store
	histReader *history.Reader
}

func (a *app) Close() {
	if a.paperStore != nil {
		_ = a.paperStore.Close()
	}
	if a.histReader != nil {
		_ = a.histReader.Close()
	}
}

// initializeSystem loads the environment and initializes logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	compressOldLogs()
	return nil
}

// compressOldLogs compresses old tradelog files if retention is configured.
func compressOldLogs() {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		_ = tradelog.CompressOlder(n)
	}
}

// buildApp wires config, stores, the derived-row service, the paper engine
// and the HTTP surface, with observability decorators around the moving
// parts.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.PaperDB), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	paperStore, err := paper.Open(cfg.Paths.PaperDB)
	if err != nil {
		return nil, err
	}

	histReader, err := history.Open(cfg.Paths.FirstCloseDB)
	if err != nil {
		logger.Warn(ctx, "first-close DB unavailable, stats degrade to zeros", "error", err)
	}

	levelSvc := levels.NewService(snapshot.NewLoader(cfg.Paths.SnapshotFile))
	gov := paper.NewGovernor(paperStore,
		cfg.Limits.MaxOrdersPerDay, cfg.Limits.MaxOpenPositions, cfg.Limits.MaxMarginUsedPct)

	brk := initializeBroker(ctx, cfg)
	eng := paperobs.Wrap(paper.NewEngine(cfg, levelSvc, paperStore, gov, brk))

	viewSvc := views.NewService(cfg, levelSvc, histReader, paperStore, gov)
	srv := server.New(cfg, viewSvc, paperStore)

	return &app{
		cfg:        cfg,
		engine:     eng,
		server:     srv,
		paperStore: paperStore,
		histReader: histReader,
	}, nil
}

// initializeBroker selects the order adapter: the real Kite client only
// when live trading is armed by both switches, the noop broker otherwise.
func initializeBroker(ctx context.Context, cfg *store.Config) interfaces.Broker {
	if cfg.LiveEnabled() {
		logger.Warn(ctx, "LIVE trading enabled - orders will reach the broker")
		return brokerobs.Wrap(zerodha.NewZerodha(zerodha.Params{
			APIKey:      os.Getenv("KITE_API_KEY"),
			AccessToken: os.Getenv("KITE_ACCESS_TOKEN"),
		}))
	}
	logger.Info(ctx, "Paper mode - orders are simulated")
	return brokerobs.Wrap(noop.New())
}
