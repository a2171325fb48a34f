package models

import "context"

// SyncResult is the outcome of one per-store sync attempt.
type SyncResult struct {
	StoreCode string `json:"store_code"`
	JobName   string `json:"job_name"`
	Success   bool   `json:"success"`
	// Skipped is set when the attempt lost the store lock to a concurrent
	// sync; it is not a failure.
	Skipped    bool   `json:"skipped"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// BulkResult aggregates a fan-out over many stores. Failed counts stores,
// never aborted siblings: Total == Successful + Failed + Skipped always.
type BulkResult struct {
	JobName    string        `json:"job_name"`
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Results    []*SyncResult `json:"results"`
	DurationMs int64         `json:"duration_ms"`
}

// Orchestrator runs one store's sync end-to-end under lock protection.
type Orchestrator interface {
	SyncUserStats(ctx context.Context, storeCode string) *SyncResult
	SyncVideoStats(ctx context.Context, storeCode string) *SyncResult
	// FullSync composes both stages inside a single lock acquisition.
	FullSync(ctx context.Context, storeCode string) *SyncResult
}
