package locker

import (
	"context"
	"sync"
)

// LocalAdvisory is an in-process keyed try-lock implementing
// models.AdvisoryLocker. It stands in for Postgres advisory locks when the
// underlying database has no native advisory primitive (sqlite in tests),
// preserving the second failure domain at process scope.
type LocalAdvisory struct {
	mu   sync.Mutex
	held map[int32]bool
}

func NewLocalAdvisory() *LocalAdvisory {
	return &LocalAdvisory{held: make(map[int32]bool)}
}

func (a *LocalAdvisory) tryLock(key int32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.held[key] {
		return false
	}
	a.held[key] = true
	return true
}

func (a *LocalAdvisory) unlock(key int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.held, key)
}

func (a *LocalAdvisory) WithAdvisoryLock(ctx context.Context, key int32, fn func() error) (bool, error) {
	if !a.tryLock(key) {
		return false, nil
	}
	defer a.unlock(key)
	return true, fn()
}
