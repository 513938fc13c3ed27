package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// LedgerStore implements domain.LedgerStore on DuckDB. One table per domain;
// INSERT OR REPLACE on the natural key makes repeated ingestion of
// overlapping batches idempotent.
type LedgerStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLedgerStore creates a LedgerStore over the client's database.
func NewLedgerStore(c *Client, logger *slog.Logger) *LedgerStore {
	return &LedgerStore{db: c.db, logger: logger}
}

func ledgerTable(d domain.Domain) (string, error) {
	switch d {
	case domain.DomainExchange:
		return "ledger_exchange", nil
	case domain.DomainOnchain:
		return "ledger_onchain", nil
	default:
		return "", fmt.Errorf("duckdb: unknown domain %q", d)
	}
}

const ledgerCols = `domain, source, occurred_at, external_id, log_index,
	base_asset, quote_asset, action, amount, price, fee_asset, fee_amount,
	counterparty_from, counterparty_to, chain, raw_payload, year, month`

// UpsertBatch inserts new rows and replaces rows whose natural key matches,
// as one transaction per batch. Invalid records are logged and skipped so a
// single malformed record never aborts the valid remainder. Returns the
// number of rows written.
func (s *LedgerStore) UpsertBatch(ctx context.Context, d domain.Domain, txs []domain.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	table, err := ledgerTable(d)
	if err != nil {
		return 0, err
	}

	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: begin upsert batch: %w", err)
	}
	defer dbtx.Rollback()

	query := `INSERT OR REPLACE INTO ` + table + ` (` + ledgerCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := dbtx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("duckdb: prepare upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			s.logger.Warn("skipping invalid record",
				slog.String("source", tx.Source),
				slog.String("external_id", tx.ExternalID),
				slog.String("reason", err.Error()),
			)
			continue
		}

		p := tx.Period()
		if _, err := stmt.ExecContext(ctx,
			string(tx.Domain), tx.Source, tx.OccurredAt.UTC(), tx.ExternalID, tx.LogIndex,
			tx.BaseAsset, tx.QuoteAsset, string(tx.Action), tx.Amount.InexactFloat64(),
			nullFloat(tx.Price), tx.FeeAsset, nullFloat(tx.FeeAmount),
			tx.CounterpartyFrom, tx.CounterpartyTo, tx.Chain, tx.RawPayload,
			p.Year, p.Month,
		); err != nil {
			return 0, fmt.Errorf("duckdb: upsert %s/%s: %w", tx.Source, tx.ExternalID, err)
		}
		written++
	}

	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("duckdb: commit upsert batch: %w", err)
	}
	return written, nil
}

// Count returns the row count of a domain's ledger table.
func (s *LedgerStore) Count(ctx context.Context, d domain.Domain) (int64, error) {
	table, err := ledgerTable(d)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count %s: %w", table, err)
	}
	return n, nil
}

// CountDistinctKeys returns the number of distinct natural keys in a
// domain's ledger table. With the primary key in place it always equals
// Count; reconciliation checks compare the two.
func (s *LedgerStore) CountDistinctKeys(ctx context.Context, d domain.Domain) (int64, error) {
	table, err := ledgerTable(d)
	if err != nil {
		return 0, err
	}
	var n int64
	query := `SELECT COUNT(*) FROM (SELECT DISTINCT source, external_id, log_index FROM ` + table + `)`
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count distinct keys %s: %w", table, err)
	}
	return n, nil
}

func nullFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.InexactFloat64()
}

// scanTransactions reads canonical rows from any query over ledgerCols.
func scanTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		var (
			t         domain.Transaction
			dom, act  string
			occurred  time.Time
			amount    float64
			price     sql.NullFloat64
			feeAmount sql.NullFloat64
			year      int
			month     int
		)
		if err := rows.Scan(
			&dom, &t.Source, &occurred, &t.ExternalID, &t.LogIndex,
			&t.BaseAsset, &t.QuoteAsset, &act, &amount, &price,
			&t.FeeAsset, &feeAmount, &t.CounterpartyFrom, &t.CounterpartyTo,
			&t.Chain, &t.RawPayload, &year, &month,
		); err != nil {
			return nil, err
		}
		t.Domain = domain.Domain(dom)
		t.Action = domain.Action(act)
		t.OccurredAt = occurred.UTC()
		t.Amount = decimal.NewFromFloat(amount)
		if price.Valid {
			p := decimal.NewFromFloat(price.Float64)
			t.Price = &p
		}
		if feeAmount.Valid {
			f := decimal.NewFromFloat(feeAmount.Float64)
			t.FeeAmount = &f
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
