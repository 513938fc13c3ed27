// Package duckdb implements the domain store interfaces on an embedded
// DuckDB database. DuckDB gives the engine upsert-by-primary-key semantics
// for the merge step, arbitrary SQL for reporting, and native Parquet COPY
// for partition artifacts.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
)

// schemaSQL creates the ledger tables, one per domain, plus the sync-state
// table. The ledger primary key is the natural key: within a source,
// (external_id, log_index) identifies one economic event.
var schemaSQL = []string{
	ledgerTableSQL("ledger_exchange"),
	ledgerTableSQL("ledger_onchain"),
	`CREATE TABLE IF NOT EXISTS sync_state (
		source VARCHAR PRIMARY KEY,
		last_sync_at TIMESTAMP NOT NULL,
		last_run_record_count BIGINT NOT NULL,
		last_run_status VARCHAR NOT NULL,
		last_error VARCHAR,
		updated_at TIMESTAMP NOT NULL
	)`,
}

func ledgerTableSQL(name string) string {
	return `CREATE TABLE IF NOT EXISTS ` + name + ` (
		domain VARCHAR NOT NULL,
		source VARCHAR NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		external_id VARCHAR NOT NULL,
		log_index BIGINT NOT NULL DEFAULT 0,
		base_asset VARCHAR,
		quote_asset VARCHAR,
		action VARCHAR NOT NULL,
		amount DOUBLE NOT NULL,
		price DOUBLE,
		fee_asset VARCHAR,
		fee_amount DOUBLE,
		counterparty_from VARCHAR,
		counterparty_to VARCHAR,
		chain VARCHAR,
		raw_payload VARCHAR,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		PRIMARY KEY (source, external_id, log_index)
	)`
}

// Client wraps the DuckDB handle and owns schema initialization.
type Client struct {
	db *sql.DB
}

// New opens (or creates) the database at path and initializes the schema.
// An empty path opens an in-memory database, which the tests rely on.
func New(ctx context.Context, path string) (*Client, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("duckdb: create database dir: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("duckdb: open %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: ping: %w", err)
	}

	for _, stmt := range schemaSQL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("duckdb: init schema: %w", err)
		}
	}

	return &Client{db: db}, nil
}

// DB returns the underlying handle.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close shuts down the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}
