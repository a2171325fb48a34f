package models

import "context"

// RunFilter narrows ListSyncRuns for the admin API.
type RunFilter struct {
	StoreCode string
	JobName   string
	Status    string
	Limit     int
}

// Repository is the persistence surface of the sync engine. The engine is
// the sole writer of lock rows, run rows and snapshot rows.
type Repository interface {
	// Stores
	GetStore(ctx context.Context, storeCode string) (*Store, error)
	ListConnectedStores(ctx context.Context) ([]*Store, error)
	ListStoresWithExpiringTokens(ctx context.Context, before int64) ([]*Store, error)
	UpdateStoreStatus(ctx context.Context, storeCode, status string) error
	UpdateStoreTokens(ctx context.Context, storeCode, accessToken string, accessExpiresAt int64, refreshToken string, refreshExpiresAt int64) error
	UpdateLastSyncTime(ctx context.Context, storeCode string, at int64) error

	// Locks. TryInsertLock must be a single constrained write (insert or
	// silently do nothing on conflict), never read-then-write.
	DeleteExpiredLock(ctx context.Context, lockKey string, now int64) error
	TryInsertLock(ctx context.Context, lock *SyncLock) error
	GetLock(ctx context.Context, lockKey string) (*SyncLock, error)
	TakeOverLock(ctx context.Context, lockKey, prevOwner string, prevExpiresAt int64, newOwner string, newExpiresAt int64) (bool, error)
	DeleteLock(ctx context.Context, lockKey string) error

	// Snapshots
	UpsertAccountSnapshot(ctx context.Context, snap *AccountSnapshot) error
	UpsertVideoSnapshots(ctx context.Context, snaps []*VideoSnapshot) error
	LatestAccountSnapshot(ctx context.Context, storeCode string) (*AccountSnapshot, error)
	ListVideoSnapshots(ctx context.Context, storeCode, snapshotDate string) ([]*VideoSnapshot, error)

	// Run log
	CreateSyncRun(ctx context.Context, run *SyncRun) error
	FinishSyncRun(ctx context.Context, id int64, status, message string, durationMs int64) error
	ListSyncRuns(ctx context.Context, filter RunFilter) ([]*SyncRun, error)
}

// AdvisoryLocker is the session-scoped second locking layer. fn runs only
// while the advisory lock for key is held on a single pinned session; the
// returned bool reports whether the lock was obtained at all.
type AdvisoryLocker interface {
	WithAdvisoryLock(ctx context.Context, key int32, fn func() error) (bool, error)
}
