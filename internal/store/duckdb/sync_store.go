package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// SyncStore implements domain.SyncStore. One row per source, latest state
// only; rows are never deleted.
type SyncStore struct {
	db *sql.DB
}

// NewSyncStore creates a SyncStore over the client's database.
func NewSyncStore(c *Client) *SyncStore {
	return &SyncStore{db: c.db}
}

// Get returns the watermark for a source, or domain.ErrNotFound before the
// source's first recorded run.
func (s *SyncStore) Get(ctx context.Context, source string) (domain.SyncWatermark, error) {
	var (
		wm      domain.SyncWatermark
		status  string
		lastErr sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT source, last_sync_at, last_run_record_count, last_run_status, last_error, updated_at
		FROM sync_state WHERE source = ?`, source,
	).Scan(&wm.Source, &wm.LastSyncAt, &wm.LastRunRecordCount, &status, &lastErr, &wm.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SyncWatermark{}, fmt.Errorf("duckdb: watermark %s: %w", source, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SyncWatermark{}, fmt.Errorf("duckdb: get watermark %s: %w", source, err)
	}
	wm.LastSyncAt = wm.LastSyncAt.UTC()
	wm.UpdatedAt = wm.UpdatedAt.UTC()
	wm.LastRunStatus = domain.RunStatus(status)
	wm.LastError = lastErr.String
	return wm, nil
}

// RecordRun persists a run outcome unconditionally, failures included, so
// operators can see which sources are stale.
func (s *SyncStore) RecordRun(ctx context.Context, wm domain.SyncWatermark) error {
	if wm.UpdatedAt.IsZero() {
		wm.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_state
			(source, last_sync_at, last_run_record_count, last_run_status, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		wm.Source, wm.LastSyncAt.UTC(), wm.LastRunRecordCount,
		string(wm.LastRunStatus), wm.LastError, wm.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("duckdb: record run %s: %w", wm.Source, err)
	}
	return nil
}
