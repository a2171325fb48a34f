package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// WithAdvisoryLock runs fn while holding the Postgres session-level
// advisory lock for key. The whole exchange is pinned to one pooled
// connection; pg_advisory_unlock on any other session would be a no-op.
// Returns false without running fn when the lock is already held elsewhere.
func (db *DB) WithAdvisoryLock(ctx context.Context, key int32, fn func() error) (bool, error) {
	acquired := false
	var fnErr error
	err := db.Conn.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		var got bool
		if err := tx.Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&got).Error; err != nil {
			return fmt.Errorf("failed to acquire advisory lock: %s", err)
		}
		if !got {
			return nil
		}
		acquired = true
		defer func() {
			var unlocked bool
			if err := tx.Raw("SELECT pg_advisory_unlock(?)", key).Scan(&unlocked).Error; err != nil || !unlocked {
				db.logger.Error("Failed to release advisory lock ", "key ", key, " error ", err)
			}
		}()
		fnErr = fn()
		return nil
	})
	if err != nil {
		return false, err
	}
	return acquired, fnErr
}
