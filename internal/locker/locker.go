package locker

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/pkg/logger"
)

// StoreLock serializes sync work per store with two independent layers:
// a TTL row in the sync_locks table and a session-scoped advisory lock.
// The layers are redundant on purpose; a bug that slips past one (for
// example a stale-row takeover race) is still caught by the other.
// Collisions of the 32-bit advisory key between unrelated stores only
// over-serialize, never under-serialize.
type StoreLock struct {
	logger *logger.Logger

	repo     models.Repository
	advisory models.AdvisoryLocker
	ttl      time.Duration
}

// LockResult is the outcome of a WithStoreLock call. Skipped means the
// lock was contended and the operation never ran; Err carries the
// operation's failure so callers can aggregate without unwinding a batch.
type LockResult struct {
	Success bool
	Skipped bool
	Err     error
}

func New(repo models.Repository, advisory models.AdvisoryLocker, ttl time.Duration, logger *logger.Logger) *StoreLock {
	return &StoreLock{
		repo:     repo,
		advisory: advisory,
		ttl:      ttl,
		logger:   logger,
	}
}

// LockKey returns the row-lock key for a store.
func LockKey(storeCode string) string {
	return "store:" + storeCode
}

// AdvisoryKey maps a store code to its advisory-lock integer. fnv-1a is
// deterministic across restarts and instances, which is all the advisory
// layer needs from it.
func AdvisoryKey(storeCode string) int32 {
	h := fnv.New32a()
	h.Write([]byte(storeCode))
	return int32(h.Sum32())
}

func (l *StoreLock) newOwnerID() string {
	return fmt.Sprintf("%d-%d-%s", os.Getpid(), time.Now().UnixNano(), uuid.New().String()[:8])
}

// Acquire makes a single non-blocking attempt to take the row lock for
// key. Database unavailability counts as not acquired: the engine skips
// rather than syncing unprotected.
func (l *StoreLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()

	// Best-effort cleanup; correctness never depends on this delete.
	if err := l.repo.DeleteExpiredLock(ctx, key, now); err != nil {
		l.logger.Warn("Failed to clean up expired lock ", "key ", key, " error ", err)
	}

	owner := l.newOwnerID()
	lock := &models.SyncLock{
		LockKey:   key,
		LockedBy:  owner,
		LockedAt:  now,
		ExpiresAt: now + int64(ttl.Seconds()),
	}
	if err := l.repo.TryInsertLock(ctx, lock); err != nil {
		return false, err
	}

	current, err := l.repo.GetLock(ctx, key)
	if err != nil {
		return false, err
	}
	if current == nil {
		// The row vanished between insert and read; treat as contended.
		return false, nil
	}
	if current.LockedBy == owner {
		return true, nil
	}

	// Someone else holds the key. Reclaim only if their deadline passed,
	// and only through a conditional write pinned to the row we just read.
	if current.ExpiresAt < now {
		taken, err := l.repo.TakeOverLock(ctx, key, current.LockedBy, current.ExpiresAt, owner, now+int64(ttl.Seconds()))
		if err != nil {
			return false, err
		}
		if taken {
			l.logger.Warn("Took over stale lock ", "key ", key, " previous owner ", current.LockedBy)
		}
		return taken, nil
	}

	return false, nil
}

// Release drops the row lock. Best effort: a failed delete is logged and
// swallowed because the TTL guarantees eventual release anyway.
func (l *StoreLock) Release(ctx context.Context, key string) {
	if err := l.repo.DeleteLock(ctx, key); err != nil {
		l.logger.Error("Failed to release lock ", "key ", key, " error ", err)
	}
}

// WithStoreLock runs op while holding both lock layers for the store.
// If either layer cannot be obtained the other is rolled back and the
// result is Skipped. Both layers are released no matter how op ends.
func (l *StoreLock) WithStoreLock(ctx context.Context, storeCode string, op func(ctx context.Context) error) LockResult {
	key := LockKey(storeCode)

	ok, err := l.Acquire(ctx, key, l.ttl)
	if err != nil {
		l.logger.Error("Lock acquisition failed ", "store ", storeCode, " error ", err)
		return LockResult{Skipped: true, Err: err}
	}
	if !ok {
		return LockResult{Skipped: true}
	}
	defer l.Release(ctx, key)

	var opErr error
	acquired, advErr := l.advisory.WithAdvisoryLock(ctx, AdvisoryKey(storeCode), func() error {
		opErr = op(ctx)
		return nil
	})
	if advErr != nil && !acquired {
		l.logger.Error("Advisory lock failed ", "store ", storeCode, " error ", advErr)
		return LockResult{Skipped: true, Err: advErr}
	}
	if !acquired {
		return LockResult{Skipped: true}
	}

	if opErr != nil {
		return LockResult{Err: opErr}
	}
	return LockResult{Success: true}
}
