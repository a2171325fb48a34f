package models

// Sync run statuses.
const (
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
	RunStatusSkipped = "SKIPPED"
	RunStatusRunning = "RUNNING"
)

// Job names recorded in the run log.
const (
	JobRefreshTokens  = "refresh-tokens"
	JobSyncUserStats  = "sync-user-stats"
	JobSyncVideoStats = "sync-video-stats"
	JobFullSync       = "full-sync"
)

// SyncRun is one append-only audit entry describing a single sync attempt.
// Rows with an empty StoreCode describe a global all-stores job. Terminal
// rows are never mutated and never deleted by the sync engine.
type SyncRun struct {
	ID        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	StoreCode string `json:"store_code" gorm:"column:store_code;size:64;index"`
	JobName   string `json:"job_name" gorm:"column:job_name;size:32;index"`
	// RunTime is the Unix timestamp when the attempt started.
	RunTime int64  `json:"run_time" gorm:"column:run_time;index"`
	Status  string `json:"status" gorm:"column:status;size:16;index"`
	Message string `json:"message" gorm:"column:message"`
	// RawError carries the underlying error text with credential-shaped
	// substrings redacted before it ever reaches the database.
	RawError   string `json:"raw_error" gorm:"column:raw_error"`
	DurationMs int64  `json:"duration_ms" gorm:"column:duration_ms"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
