package domain

import (
	"context"
	"io"

	"github.com/shopspring/decimal"
)

// LedgerStore persists canonical transactions with replace-on-conflict
// semantics on the natural key. UpsertBatch must be idempotent under
// repeated or overlapping batches and returns the number of rows written.
type LedgerStore interface {
	UpsertBatch(ctx context.Context, d Domain, txs []Transaction) (int, error)
	Count(ctx context.Context, d Domain) (int64, error)
}

// SyncStore persists per-source sync watermarks.
type SyncStore interface {
	Get(ctx context.Context, source string) (SyncWatermark, error)
	RecordRun(ctx context.Context, wm SyncWatermark) error
}

// UnifiedFilter narrows unified-ledger queries. Zero values mean "any".
type UnifiedFilter struct {
	Domain Domain
	Source string
	Chain  string
	Year   int
	Month  int
}

// MonthlySummary is one row of the per-period volume aggregate.
type MonthlySummary struct {
	Year        int
	Month       int
	Domain      Domain
	Source      string
	Count       int64
	TotalAmount decimal.Decimal
}

// ReportStore exposes the derived, read-only reporting surface: the unified
// union of all domains' ledger tables, rebuilt fully on each invocation.
type ReportStore interface {
	RebuildUnified(ctx context.Context) (int64, error)
	QueryUnified(ctx context.Context, f UnifiedFilter) ([]Transaction, error)
	SummarizeMonthly(ctx context.Context) ([]MonthlySummary, error)
}

// PartitionExporter writes partition artifacts. Artifacts are a cache
// re-derivable from the ledger tables, not a source of truth.
type PartitionExporter interface {
	// ExportPartition writes one (domain, period) slice of the ledger to
	// path and returns the number of rows written.
	ExportPartition(ctx context.Context, d Domain, p Period, path string) (int64, error)
	// ExportSnapshot writes a whole staged or unified table to path.
	ExportSnapshot(ctx context.Context, table string, path string) (int64, error)
}

// BlobWriter uploads artifacts to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
