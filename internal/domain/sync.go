package domain

import "time"

// RunStatus is the outcome of one ingestion run for one source.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// SyncWatermark records per-source ingestion progress. One row per source,
// written after every run (including failed ones) and read at the start of
// the next. The watermark is advisory: the merge step is idempotent on its
// own, so a lost or stale watermark costs re-fetching, never correctness.
type SyncWatermark struct {
	Source             string
	LastSyncAt         time.Time
	LastRunRecordCount int64
	LastRunStatus      RunStatus
	LastError          string
	UpdatedAt          time.Time
}
