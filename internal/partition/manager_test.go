package partition

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

type fakeExporter struct {
	calls []string // paths requested, in order
}

func (f *fakeExporter) ExportPartition(ctx context.Context, d domain.Domain, p domain.Period, path string) (int64, error) {
	f.calls = append(f.calls, path)
	return 1, nil
}

func (f *fakeExporter) ExportSnapshot(ctx context.Context, table, path string) (int64, error) {
	return 0, nil
}

func txAt(ts time.Time) domain.Transaction {
	return domain.Transaction{
		Domain:     domain.DomainExchange,
		Source:     "kraken",
		ExternalID: "T-" + ts.Format("20060102150405"),
		OccurredAt: ts,
	}
}

func TestPeriodsSortedDistinct(t *testing.T) {
	txs := []domain.Transaction{
		txAt(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		txAt(time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC)),
		txAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
		txAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	got := Periods(txs)
	want := []domain.Period{
		{Year: 2023, Month: 12},
		{Year: 2024, Month: 1},
		{Year: 2024, Month: 3},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d periods, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("period[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPeriodsMonthBoundaryUTC(t *testing.T) {
	// 2024-03-31 23:30 in UTC+2 is already April in local terms but must
	// partition by its UTC month.
	loc := time.FixedZone("EET", 2*60*60)
	txs := []domain.Transaction{
		txAt(time.Date(2024, 4, 1, 1, 30, 0, 0, loc)),
	}
	got := Periods(txs)
	if len(got) != 1 || got[0] != (domain.Period{Year: 2024, Month: 3}) {
		t.Errorf("got %v, want [2024-03]", got)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		d    domain.Domain
		p    domain.Period
		want string
	}{
		{domain.DomainExchange, domain.Period{Year: 2024, Month: 3}, "exchanges_2024-03.parquet"},
		{domain.DomainOnchain, domain.Period{Year: 2023, Month: 12}, "onchain_2023-12.parquet"},
		{domain.DomainExchange, domain.Period{Year: 999, Month: 1}, "exchanges_0999-01.parquet"},
	}
	for _, tt := range tests {
		if got := Filename(tt.d, tt.p); got != tt.want {
			t.Errorf("Filename(%s, %v) = %q, want %q", tt.d, tt.p, got, tt.want)
		}
	}
}

func TestManagerExportsTouchedPeriodsOnly(t *testing.T) {
	exporter := &fakeExporter{}
	dir := t.TempDir()
	m := NewManager(exporter, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	txs := []domain.Transaction{
		txAt(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)),
		txAt(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)),
		txAt(time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)),
	}

	paths, err := m.Export(context.Background(), domain.DomainExchange, txs)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "exchanges_2024-03.parquet"),
		filepath.Join(dir, "exchanges_2024-04.parquet"),
	}
	if len(paths) != len(want) {
		t.Fatalf("got %d paths, want %d", len(paths), len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	if len(exporter.calls) != 2 {
		t.Errorf("exporter called %d times, want 2", len(exporter.calls))
	}
}

func TestManagerExportEmptyBatch(t *testing.T) {
	exporter := &fakeExporter{}
	m := NewManager(exporter, t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	paths, err := m.Export(context.Background(), domain.DomainOnchain, nil)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(paths) != 0 || len(exporter.calls) != 0 {
		t.Errorf("empty batch must not export anything")
	}
}
