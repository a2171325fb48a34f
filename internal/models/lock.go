package models

// SyncLock represents a distributed per-store lock in the database.
// Used for coordinating sync work between concurrent triggers (scheduler,
// admin API, retries) and between multiple instances in HA mode.
type SyncLock struct {
	LockKey  string `gorm:"primaryKey;size:255"`
	LockedBy string `gorm:"size:255;not null"`
	LockedAt int64  `gorm:"not null;index"`
	// ExpiresAt bounds how long a crashed holder can keep the key; a lock
	// whose deadline has passed is reclaimable by any new acquirer.
	ExpiresAt int64 `gorm:"not null;index"`
}

// TableName specifies the table name for GORM
func (SyncLock) TableName() string {
	return "sync_locks"
}
