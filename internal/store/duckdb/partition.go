package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// PartitionStore implements domain.PartitionExporter using DuckDB's native
// Parquet COPY. Because the ledger tables already hold the merged,
// deduplicated state for every natural key, re-exporting a period slice is
// exactly the "existing union new, new wins" merge of that partition.
type PartitionStore struct {
	db *sql.DB
}

// NewPartitionStore creates a PartitionStore over the client's database.
func NewPartitionStore(c *Client) *PartitionStore {
	return &PartitionStore{db: c.db}
}

// ExportPartition writes one (domain, year, month) ledger slice to path as
// Parquet and returns the number of rows written.
func (s *PartitionStore) ExportPartition(ctx context.Context, d domain.Domain, p domain.Period, path string) (int64, error) {
	table, err := ledgerTable(d)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE year = ? AND month = ?`,
		p.Year, p.Month,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("duckdb: count partition %s %s: %w", table, p, err)
	}

	// COPY does not take bound parameters for the target path; year and
	// month are integers and the path is quote-escaped.
	copySQL := fmt.Sprintf(
		`COPY (SELECT %s FROM %s WHERE year = %d AND month = %d ORDER BY occurred_at)
		 TO '%s' (FORMAT PARQUET, COMPRESSION SNAPPY)`,
		ledgerCols, table, p.Year, p.Month, escapePath(path),
	)
	if _, err := s.db.ExecContext(ctx, copySQL); err != nil {
		return 0, fmt.Errorf("duckdb: export partition %s %s: %w", table, p, err)
	}
	return n, nil
}

// ExportSnapshot writes a whole table to path as Parquet and returns its row
// count. Used for the staged_* and transactions_unified snapshots.
func (s *PartitionStore) ExportSnapshot(ctx context.Context, table string, path string) (int64, error) {
	if !validSnapshotTable(table) {
		return 0, fmt.Errorf("duckdb: snapshot of unknown table %q", table)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count %s: %w", table, err)
	}

	copySQL := fmt.Sprintf(
		`COPY %s TO '%s' (FORMAT PARQUET, COMPRESSION SNAPPY)`,
		table, escapePath(path),
	)
	if _, err := s.db.ExecContext(ctx, copySQL); err != nil {
		return 0, fmt.Errorf("duckdb: export snapshot %s: %w", table, err)
	}
	return n, nil
}

func validSnapshotTable(table string) bool {
	switch table {
	case "ledger_exchange", "ledger_onchain", "transactions_unified":
		return true
	}
	return false
}

func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
