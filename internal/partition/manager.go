// Package partition groups canonical records into (year, month) buckets and
// keeps the on-disk Parquet partition artifacts in sync with the ledger.
// Artifacts are a cache: each file is re-derivable entirely from the store,
// and only the periods touched by the current run are re-exported.
package partition

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// entity names the per-domain artifact family, mirroring the raw data layout.
var entity = map[domain.Domain]string{
	domain.DomainExchange: "exchanges",
	domain.DomainOnchain:  "onchain",
}

// Periods returns the distinct partition periods touched by a batch, sorted
// chronologically.
func Periods(txs []domain.Transaction) []domain.Period {
	seen := make(map[domain.Period]struct{}, len(txs))
	for _, tx := range txs {
		seen[tx.Period()] = struct{}{}
	}
	periods := make([]domain.Period, 0, len(seen))
	for p := range seen {
		periods = append(periods, p)
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Year != periods[j].Year {
			return periods[i].Year < periods[j].Year
		}
		return periods[i].Month < periods[j].Month
	})
	return periods
}

// Filename returns the artifact name for one (domain, period) bucket,
// e.g. "exchanges_2024-03.parquet".
func Filename(d domain.Domain, p domain.Period) string {
	return fmt.Sprintf("%s_%s.parquet", entity[d], p)
}

// Manager exports partition artifacts for the periods a run touched.
type Manager struct {
	exporter domain.PartitionExporter
	dir      string
	logger   *slog.Logger
}

// NewManager creates a Manager writing artifacts under dir.
func NewManager(exporter domain.PartitionExporter, dir string, logger *slog.Logger) *Manager {
	return &Manager{exporter: exporter, dir: dir, logger: logger}
}

// Export re-derives the artifacts for every period present in txs. The
// ledger already holds the merged state for those periods, so each exported
// file is the deduplicated union of previously stored and newly ingested
// rows, new rows winning on natural-key conflict. Returns the paths written.
func (m *Manager) Export(ctx context.Context, d domain.Domain, txs []domain.Transaction) ([]string, error) {
	periods := Periods(txs)
	if len(periods) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("partition: create dir %s: %w", m.dir, err)
	}

	paths := make([]string, 0, len(periods))
	for _, p := range periods {
		path := filepath.Join(m.dir, Filename(d, p))
		rows, err := m.exporter.ExportPartition(ctx, d, p, path)
		if err != nil {
			return paths, fmt.Errorf("partition: export %s: %w", path, err)
		}
		m.logger.Info("partition exported",
			slog.String("domain", string(d)),
			slog.String("period", p.String()),
			slog.String("path", path),
			slog.Int64("rows", rows),
		)
		paths = append(paths, path)
	}
	return paths, nil
}
