package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"b5-trader/internal/logger"
	"b5-trader/internal/trace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := initializeSystem(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = trace.Shutdown(shutdownCtx)
	}()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	// Engine loop: one cycle per interval, skipping when the snapshot has
	// not advanced.
	tick := time.NewTicker(time.Duration(app.cfg.Paper.CycleMs) * time.Millisecond)
	defer tick.Stop()
	go func() {
		for {
			select {
			case <-tick.C:
				if _, err := app.engine.Cycle(ctx); err != nil {
					logger.ErrorWithErr(ctx, "engine cycle error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := app.server.HTTPServer()
	go func() {
		logger.Info(ctx, "HTTP server listening",
			"addr", srv.Addr,
			"trade_mode", app.cfg.Trade.Mode,
			"live_enabled", app.cfg.LiveEnabled(),
			"tf", app.cfg.Paper.Timeframe,
			"factor", app.cfg.Paper.Factor,
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "server error", err)
			cancel()
		}
	}()

	select {
	case <-sigc:
		logger.Info(ctx, "Shutting down...")
	case <-ctx.Done():
	}

	shutdownCtx, c := context.WithTimeout(context.Background(), 8*time.Second)
	defer c()
	return srv.Shutdown(shutdownCtx)
}
