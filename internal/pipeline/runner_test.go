package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
	"github.com/crazysoldier/CryptoBookKeeper/internal/partition"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memLedger is an in-memory LedgerStore with natural-key replace semantics.
type memLedger struct {
	mu   sync.Mutex
	rows map[domain.NaturalKey]domain.Transaction
	err  error
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[domain.NaturalKey]domain.Transaction)}
}

func (m *memLedger) UpsertBatch(ctx context.Context, d domain.Domain, txs []domain.Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	written := 0
	for _, tx := range txs {
		if tx.Validate() != nil {
			continue
		}
		m.rows[tx.Key()] = tx
		written++
	}
	return written, nil
}

func (m *memLedger) Count(ctx context.Context, d domain.Domain) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(0)
	for _, tx := range m.rows {
		if tx.Domain == d {
			n++
		}
	}
	return n, nil
}

// memSyncStore keeps watermarks in memory; getErr simulates an unreachable
// watermark store.
type memSyncStore struct {
	mu     sync.Mutex
	marks  map[string]domain.SyncWatermark
	getErr error
	recErr error
}

func newMemSyncStore() *memSyncStore {
	return &memSyncStore{marks: make(map[string]domain.SyncWatermark)}
}

func (m *memSyncStore) Get(ctx context.Context, source string) (domain.SyncWatermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return domain.SyncWatermark{}, m.getErr
	}
	wm, ok := m.marks[source]
	if !ok {
		return domain.SyncWatermark{}, domain.ErrNotFound
	}
	return wm, nil
}

func (m *memSyncStore) RecordRun(ctx context.Context, wm domain.SyncWatermark) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recErr != nil {
		return m.recErr
	}
	m.marks[wm.Source] = wm
	return nil
}

type memReports struct{}

func (memReports) RebuildUnified(ctx context.Context) (int64, error) { return 0, nil }
func (memReports) QueryUnified(ctx context.Context, f domain.UnifiedFilter) ([]domain.Transaction, error) {
	return nil, nil
}
func (memReports) SummarizeMonthly(ctx context.Context) ([]domain.MonthlySummary, error) {
	return nil, nil
}

type memExporter struct{}

func (memExporter) ExportPartition(ctx context.Context, d domain.Domain, p domain.Period, path string) (int64, error) {
	return 0, nil
}
func (memExporter) ExportSnapshot(ctx context.Context, table, path string) (int64, error) {
	return 0, nil
}

// fakeSyncer returns canned transactions and records the since bound it was
// called with.
type fakeSyncer struct {
	source string
	txs    []domain.Transaction
	err    error

	mu        sync.Mutex
	sinceSeen []time.Time
}

func (f *fakeSyncer) Source() string        { return f.source }
func (f *fakeSyncer) Domain() domain.Domain { return domain.DomainExchange }

func (f *fakeSyncer) Fetch(ctx context.Context, since time.Time) ([]domain.Transaction, FetchStats, error) {
	f.mu.Lock()
	f.sinceSeen = append(f.sinceSeen, since)
	f.mu.Unlock()
	if f.err != nil {
		return nil, FetchStats{}, f.err
	}
	return f.txs, FetchStats{Fetched: len(f.txs)}, nil
}

func sampleTx(source, id string, ts time.Time) domain.Transaction {
	return domain.Transaction{
		Domain:     domain.DomainExchange,
		Source:     source,
		ExternalID: id,
		OccurredAt: ts,
		BaseAsset:  "ETH",
		Action:     domain.ActionTradeBuy,
		Amount:     decimal.NewFromInt(1),
	}
}

func newTestRunner(t *testing.T, ledger domain.LedgerStore, syncs domain.SyncStore, opts Options) *Runner {
	t.Helper()
	dir := t.TempDir()
	if opts.Start.IsZero() {
		opts.Start = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return NewRunner(
		ledger, syncs,
		partition.NewManager(memExporter{}, dir, testLogger()),
		memReports{}, memExporter{}, nil, dir, opts, testLogger(),
	)
}

func TestRunIdempotentMerge(t *testing.T) {
	ledger := newMemLedger()
	syncs := newMemSyncStore()
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	job := &fakeSyncer{source: "kraken", txs: []domain.Transaction{
		sampleTx("kraken", "T-1", ts),
		sampleTx("kraken", "T-2", ts),
	}}
	r := newTestRunner(t, ledger, syncs, Options{})

	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), []Syncer{job}); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	n, _ := ledger.Count(context.Background(), domain.DomainExchange)
	if n != 2 {
		t.Errorf("ledger has %d rows after two identical runs, want 2", n)
	}
}

func TestRunAdvancesWatermarkWithOverlap(t *testing.T) {
	ledger := newMemLedger()
	syncs := newMemSyncStore()
	last := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	syncs.marks["kraken"] = domain.SyncWatermark{
		Source:        "kraken",
		LastSyncAt:    last,
		LastRunStatus: domain.RunSuccess,
	}
	job := &fakeSyncer{source: "kraken"}
	r := newTestRunner(t, ledger, syncs, Options{Overlap: time.Hour})

	if _, err := r.Run(context.Background(), []Syncer{job}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(job.sinceSeen) != 1 {
		t.Fatalf("fetch called %d times", len(job.sinceSeen))
	}
	want := last.Add(-time.Hour)
	if !job.sinceSeen[0].Equal(want) {
		t.Errorf("since = %v, want watermark minus overlap %v", job.sinceSeen[0], want)
	}

	wm := syncs.marks["kraken"]
	if wm.LastRunStatus != domain.RunSuccess {
		t.Errorf("status = %q", wm.LastRunStatus)
	}
	if !wm.LastSyncAt.After(last) {
		t.Errorf("watermark did not advance: %v", wm.LastSyncAt)
	}
}

func TestRunFirstRunUsesGlobalStart(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &fakeSyncer{source: "kraken"}
	r := newTestRunner(t, newMemLedger(), newMemSyncStore(), Options{Start: start})

	if _, err := r.Run(context.Background(), []Syncer{job}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !job.sinceSeen[0].Equal(start) {
		t.Errorf("since = %v, want global start %v", job.sinceSeen[0], start)
	}
}

func TestRunDegradesWhenWatermarkUnavailable(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	syncs := newMemSyncStore()
	syncs.getErr = errors.New("watermark table corrupt")
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	job := &fakeSyncer{source: "kraken", txs: []domain.Transaction{sampleTx("kraken", "T-1", ts)}}
	ledger := newMemLedger()
	r := newTestRunner(t, ledger, syncs, Options{Start: start})

	if _, err := r.Run(context.Background(), []Syncer{job}); err != nil {
		t.Fatalf("run must not fail on a broken watermark store: %v", err)
	}
	if !job.sinceSeen[0].Equal(start) {
		t.Errorf("since = %v, want full-range fallback %v", job.sinceSeen[0], start)
	}
	n, _ := ledger.Count(context.Background(), domain.DomainExchange)
	if n != 1 {
		t.Errorf("records still merged despite degraded watermark, got %d", n)
	}
}

func TestRunRecordWatermarkFailureIsNonFatal(t *testing.T) {
	syncs := newMemSyncStore()
	syncs.recErr = errors.New("disk full")
	job := &fakeSyncer{source: "kraken"}
	r := newTestRunner(t, newMemLedger(), syncs, Options{})

	if _, err := r.Run(context.Background(), []Syncer{job}); err != nil {
		t.Fatalf("run must not fail when recording the watermark fails: %v", err)
	}
}

func TestRunFailedSourceDoesNotAbortSiblings(t *testing.T) {
	ledger := newMemLedger()
	syncs := newMemSyncStore()
	prev := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	syncs.marks["broken"] = domain.SyncWatermark{
		Source:        "broken",
		LastSyncAt:    prev,
		LastRunStatus: domain.RunSuccess,
	}
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	bad := &fakeSyncer{source: "broken", err: errors.New("api down")}
	good := &fakeSyncer{source: "kraken", txs: []domain.Transaction{sampleTx("kraken", "T-1", ts)}}

	r := newTestRunner(t, ledger, syncs, Options{})
	summary, err := r.Run(context.Background(), []Syncer{bad, good})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if summary.Sources[0].Err == nil {
		t.Error("broken source reported no error")
	}
	if summary.Sources[1].Err != nil {
		t.Errorf("healthy source failed: %v", summary.Sources[1].Err)
	}
	n, _ := ledger.Count(context.Background(), domain.DomainExchange)
	if n != 1 {
		t.Errorf("healthy source's records missing, got %d", n)
	}

	// The failed source keeps its previous confirmed sync time.
	wm := syncs.marks["broken"]
	if wm.LastRunStatus != domain.RunFailed {
		t.Errorf("status = %q, want failed", wm.LastRunStatus)
	}
	if !wm.LastSyncAt.Equal(prev) {
		t.Errorf("failed run moved the watermark: %v", wm.LastSyncAt)
	}
	if wm.LastError == "" {
		t.Error("failed run recorded no error message")
	}
}

func TestRunParallelSources(t *testing.T) {
	ledger := newMemLedger()
	ts := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	jobs := []Syncer{
		&fakeSyncer{source: "kraken", txs: []domain.Transaction{sampleTx("kraken", "T-1", ts)}},
		&fakeSyncer{source: "coinbase", txs: []domain.Transaction{sampleTx("coinbase", "T-1", ts)}},
		&fakeSyncer{source: "binance", txs: []domain.Transaction{sampleTx("binance", "T-1", ts)}},
	}

	r := newTestRunner(t, ledger, newMemSyncStore(), Options{Parallelism: 3})
	summary, err := r.Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(summary.Sources) != 3 {
		t.Fatalf("got %d source results", len(summary.Sources))
	}
	n, _ := ledger.Count(context.Background(), domain.DomainExchange)
	if n != 3 {
		t.Errorf("ledger has %d rows, want 3", n)
	}
}
