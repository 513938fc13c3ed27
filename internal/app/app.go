// Package app provides the top-level application lifecycle for the
// bookkeeper. It wires together all dependencies (the DuckDB stores, the
// source clients, the partition manager, and the optional S3 archive) and
// drives a single ingestion run to completion.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crazysoldier/CryptoBookKeeper/internal/config"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies and executes one
// ingestion run over every configured source. The process is a batch job:
// when Run returns the ledger, the unified table, and the curated Parquet
// partitions are up to date.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting ingestion",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("exchanges", len(a.cfg.Exchanges)),
		slog.Int("chains", len(a.cfg.Onchain.Chains)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if len(deps.Jobs) == 0 {
		return fmt.Errorf("app: no sources configured with usable credentials")
	}

	summary, err := deps.Runner.Run(ctx, deps.Jobs)
	if err != nil {
		return fmt.Errorf("app: ingestion run %s: %w", summary.RunID, err)
	}

	failed := 0
	for _, res := range summary.Sources {
		if res.Err != nil {
			failed++
		}
	}
	a.logger.InfoContext(ctx, "ingestion finished",
		slog.String("run_id", summary.RunID),
		slog.Int("sources", len(summary.Sources)),
		slog.Int("failed_sources", failed),
		slog.Int64("unified_rows", summary.UnifiedRows),
	)
	return nil
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
