package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// ReportStore implements domain.ReportStore: the unified reporting table and
// the aggregates derived from it. The unified table carries no business
// logic of its own; it is rebuilt fully on each invocation.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a ReportStore over the client's database.
func NewReportStore(c *Client) *ReportStore {
	return &ReportStore{db: c.db}
}

// RebuildUnified replaces transactions_unified with the union of all ledger
// tables and returns its row count.
func (s *ReportStore) RebuildUnified(ctx context.Context) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		CREATE OR REPLACE TABLE transactions_unified AS
		SELECT `+ledgerCols+` FROM ledger_exchange
		UNION ALL
		SELECT `+ledgerCols+` FROM ledger_onchain`)
	if err != nil {
		return 0, fmt.Errorf("duckdb: rebuild unified table: %w", err)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions_unified`).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count unified table: %w", err)
	}
	return n, nil
}

// QueryUnified returns unified rows matching the filter, ordered by time.
func (s *ReportStore) QueryUnified(ctx context.Context, f domain.UnifiedFilter) ([]domain.Transaction, error) {
	query := `SELECT ` + ledgerCols + ` FROM transactions_unified WHERE 1=1`
	var args []any

	if f.Domain != "" {
		query += " AND domain = ?"
		args = append(args, string(f.Domain))
	}
	if f.Source != "" {
		query += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.Chain != "" {
		query += " AND chain = ?"
		args = append(args, f.Chain)
	}
	if f.Year != 0 {
		query += " AND year = ?"
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		query += " AND month = ?"
		args = append(args, f.Month)
	}
	query += " ORDER BY occurred_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("duckdb: query unified: %w", err)
	}
	defer rows.Close()

	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("duckdb: scan unified rows: %w", err)
	}
	return txs, nil
}

// SummarizeMonthly returns per-(year, month, domain, source) record counts
// and amount totals from the unified table.
func (s *ReportStore) SummarizeMonthly(ctx context.Context) ([]domain.MonthlySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT year, month, domain, source, COUNT(*), SUM(amount)
		FROM transactions_unified
		GROUP BY year, month, domain, source
		ORDER BY year, month, domain, source`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: monthly summary: %w", err)
	}
	defer rows.Close()

	var out []domain.MonthlySummary
	for rows.Next() {
		var (
			m     domain.MonthlySummary
			dom   string
			total sql.NullFloat64
		)
		if err := rows.Scan(&m.Year, &m.Month, &dom, &m.Source, &m.Count, &total); err != nil {
			return nil, fmt.Errorf("duckdb: scan monthly summary: %w", err)
		}
		m.Domain = domain.Domain(dom)
		m.TotalAmount = decimal.NewFromFloat(total.Float64)
		out = append(out, m)
	}
	return out, rows.Err()
}
