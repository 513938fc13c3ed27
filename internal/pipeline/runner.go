// Package pipeline drives ingestion runs: per-source watermark lookup,
// fetch, normalization, merge, partition export, and sync-state recording.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
	"github.com/crazysoldier/CryptoBookKeeper/internal/partition"
)

// FetchStats reports what one source's fetch-and-normalize phase did.
type FetchStats struct {
	Fetched           int // raw records received from the collaborator
	DroppedUnmappable int
	DroppedScam       int
	SkippedCurrencies int // exchange transfer probes that failed non-fatally
}

// Syncer fetches and normalizes one source's new records since a lower
// bound. Implementations must treat per-record problems as non-fatal and
// only return an error when the source as a whole cannot be synced.
type Syncer interface {
	Source() string
	Domain() domain.Domain
	Fetch(ctx context.Context, since time.Time) ([]domain.Transaction, FetchStats, error)
}

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	Source   string
	Upserted int
	Stats    FetchStats
	Err      error
}

// RunSummary aggregates a whole run.
type RunSummary struct {
	RunID       string
	Sources     []SourceResult
	UnifiedRows int64
}

// Options tunes a Runner.
type Options struct {
	// Start is the global lower bound for first-run fetches.
	Start time.Time
	// Overlap is re-subtracted from each watermark to absorb records that
	// finalize after their nominal timestamp.
	Overlap time.Duration
	// Parallelism bounds concurrent source processing. Merges are
	// serialized regardless, so values above 1 only overlap the fetch I/O.
	Parallelism int
}

// Runner executes ingestion runs over a set of sources. The sync watermark
// is advisory: if its store is unreachable the runner degrades to full-range
// fetches and relies on the merge step's idempotence for correctness.
type Runner struct {
	ledger     domain.LedgerStore
	syncs      domain.SyncStore
	partitions *partition.Manager
	reports    domain.ReportStore
	snapshots  domain.PartitionExporter
	blob       domain.BlobWriter // optional archive target
	curatedDir string
	opts       Options
	logger     *slog.Logger

	mu sync.Mutex // serializes merge + partition export across sources
}

// NewRunner wires a Runner. blob may be nil to disable archiving.
func NewRunner(
	ledger domain.LedgerStore,
	syncs domain.SyncStore,
	partitions *partition.Manager,
	reports domain.ReportStore,
	snapshots domain.PartitionExporter,
	blob domain.BlobWriter,
	curatedDir string,
	opts Options,
	logger *slog.Logger,
) *Runner {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Overlap <= 0 {
		opts.Overlap = time.Hour
	}
	return &Runner{
		ledger:     ledger,
		syncs:      syncs,
		partitions: partitions,
		reports:    reports,
		snapshots:  snapshots,
		blob:       blob,
		curatedDir: curatedDir,
		opts:       opts,
		logger:     logger,
	}
}

// Run processes every source to completion, then rebuilds the unified table
// and refreshes the curated snapshots. A failing source is recorded in its
// watermark and never aborts its siblings; Run itself fails only on
// cancellation or when the post-run reporting steps fail.
func (r *Runner) Run(ctx context.Context, jobs []Syncer) (RunSummary, error) {
	summary := RunSummary{RunID: uuid.NewString()}
	logger := r.logger.With(slog.String("run_id", summary.RunID))

	logger.Info("ingestion run starting",
		slog.Int("sources", len(jobs)),
		slog.Duration("overlap", r.opts.Overlap),
		slog.Int("parallelism", r.opts.Parallelism),
	)

	results := make([]SourceResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = r.runSource(gctx, logger, job)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	summary.Sources = results

	rows, err := r.reports.RebuildUnified(ctx)
	if err != nil {
		return summary, fmt.Errorf("pipeline: rebuild unified: %w", err)
	}
	summary.UnifiedRows = rows
	logger.Info("unified table rebuilt", slog.Int64("rows", rows))

	r.logMonthlySummary(ctx, logger)

	if err := r.exportSnapshots(ctx, logger); err != nil {
		return summary, err
	}
	if err := r.archive(ctx, logger); err != nil {
		return summary, err
	}

	logger.Info("ingestion run complete")
	return summary, nil
}

// runSource syncs one source end to end and records the outcome in its
// watermark, success or failure.
func (r *Runner) runSource(ctx context.Context, logger *slog.Logger, job Syncer) SourceResult {
	source := job.Source()
	res := SourceResult{Source: source}
	logger = logger.With(slog.String("source", source))

	fetchStarted := time.Now().UTC()
	since, prevSync := r.watermark(ctx, logger, source)

	logger.Info("syncing source", slog.Time("since", since))

	txs, stats, err := job.Fetch(ctx, since)
	res.Stats = stats
	if err != nil {
		res.Err = err
		logger.Error("source sync failed", slog.String("error", err.Error()))
		r.recordRun(ctx, logger, domain.SyncWatermark{
			Source:        source,
			LastSyncAt:    prevSync,
			LastRunStatus: domain.RunFailed,
			LastError:     err.Error(),
		})
		return res
	}

	// Merge and partition export are read-modify-write on shared state;
	// one source at a time.
	r.mu.Lock()
	upserted, err := r.ledger.UpsertBatch(ctx, job.Domain(), txs)
	if err == nil {
		_, err = r.partitions.Export(ctx, job.Domain(), txs)
	}
	r.mu.Unlock()

	if err != nil {
		res.Err = err
		logger.Error("merging source records failed", slog.String("error", err.Error()))
		r.recordRun(ctx, logger, domain.SyncWatermark{
			Source:        source,
			LastSyncAt:    prevSync,
			LastRunStatus: domain.RunFailed,
			LastError:     err.Error(),
		})
		return res
	}

	res.Upserted = upserted
	logger.Info("source synced",
		slog.Int("fetched", stats.Fetched),
		slog.Int("upserted", upserted),
		slog.Int("dropped_unmappable", stats.DroppedUnmappable),
		slog.Int("dropped_scam", stats.DroppedScam),
		slog.Int("skipped_currencies", stats.SkippedCurrencies),
	)

	r.recordRun(ctx, logger, domain.SyncWatermark{
		Source:             source,
		LastSyncAt:         fetchStarted,
		LastRunRecordCount: int64(upserted),
		LastRunStatus:      domain.RunSuccess,
	})
	return res
}

// watermark returns the lower bound for "new" data for a source, and the
// previous confirmed sync time (zero before the first successful run).
// Watermark-store failures degrade to the configured global start.
func (r *Runner) watermark(ctx context.Context, logger *slog.Logger, source string) (since, prevSync time.Time) {
	wm, err := r.syncs.Get(ctx, source)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return r.opts.Start, time.Time{}
	case err != nil:
		logger.Warn("watermark unavailable, falling back to full-range fetch",
			slog.String("error", err.Error()),
		)
		return r.opts.Start, time.Time{}
	}

	prevSync = wm.LastSyncAt
	since = prevSync.Add(-r.opts.Overlap)
	if since.Before(r.opts.Start) {
		since = r.opts.Start
	}
	return since, prevSync
}

// recordRun persists a run outcome; failures here are logged, not fatal,
// because the watermark is advisory.
func (r *Runner) recordRun(ctx context.Context, logger *slog.Logger, wm domain.SyncWatermark) {
	wm.UpdatedAt = time.Now().UTC()
	if err := r.syncs.RecordRun(ctx, wm); err != nil {
		logger.Warn("failed to record sync watermark", slog.String("error", err.Error()))
	}
}

func (r *Runner) logMonthlySummary(ctx context.Context, logger *slog.Logger) {
	summaries, err := r.reports.SummarizeMonthly(ctx)
	if err != nil {
		logger.Warn("monthly summary unavailable", slog.String("error", err.Error()))
		return
	}
	for _, s := range summaries {
		logger.Info("monthly volume",
			slog.String("period", fmt.Sprintf("%04d-%02d", s.Year, s.Month)),
			slog.String("domain", string(s.Domain)),
			slog.String("source", s.Source),
			slog.Int64("count", s.Count),
			slog.String("total_amount", s.TotalAmount.String()),
		)
	}
}

// snapshotFiles maps staged tables to their curated snapshot artifacts.
var snapshotFiles = map[string]string{
	"ledger_exchange":      "staged_exchanges.parquet",
	"ledger_onchain":       "staged_onchain.parquet",
	"transactions_unified": "transactions_unified.parquet",
}

func (r *Runner) exportSnapshots(ctx context.Context, logger *slog.Logger) error {
	if err := os.MkdirAll(r.curatedDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create curated dir: %w", err)
	}
	for table, name := range snapshotFiles {
		path := filepath.Join(r.curatedDir, name)
		rows, err := r.snapshots.ExportSnapshot(ctx, table, path)
		if err != nil {
			return fmt.Errorf("pipeline: snapshot %s: %w", table, err)
		}
		logger.Info("snapshot exported", slog.String("path", path), slog.Int64("rows", rows))
	}
	return nil
}

// archive uploads every curated Parquet artifact to object storage when an
// archive target is configured.
func (r *Runner) archive(ctx context.Context, logger *slog.Logger) error {
	if r.blob == nil {
		return nil
	}

	entries, err := os.ReadDir(r.curatedDir)
	if err != nil {
		return fmt.Errorf("pipeline: read curated dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".parquet" {
			continue
		}
		path := filepath.Join(r.curatedDir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("pipeline: open artifact %s: %w", path, err)
		}
		key := "curated/" + entry.Name()
		err = r.blob.Put(ctx, key, f, "application/vnd.apache.parquet")
		f.Close()
		if err != nil {
			return fmt.Errorf("pipeline: archive %s: %w", path, err)
		}
		logger.Info("artifact archived", slog.String("key", key))
	}
	return nil
}
