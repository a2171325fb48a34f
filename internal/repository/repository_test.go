package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/internal/repository"
	"github.com/shoplens/tiksync/pkg/logger"
)

func openTestDB(t *testing.T) *repository.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := gorm.Open(sqlite.Open("file:"+path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	db, err := repository.New(conn, logger.NewNop())
	require.NoError(t, err)
	return db
}

func TestUpsertAccountSnapshotIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := &models.AccountSnapshot{
		StoreCode:     "S1",
		SnapshotDate:  "2026-08-29",
		FollowerCount: 100,
		LikesCount:    10,
		SyncedAt:      time.Now().Unix(),
	}
	require.NoError(t, db.UpsertAccountSnapshot(ctx, first))

	second := &models.AccountSnapshot{
		StoreCode:     "S1",
		SnapshotDate:  "2026-08-29",
		FollowerCount: 120,
		LikesCount:    12,
		SyncedAt:      time.Now().Unix(),
	}
	require.NoError(t, db.UpsertAccountSnapshot(ctx, second))

	var rows []*models.AccountSnapshot
	require.NoError(t, db.Conn.Where("store_code = ?", "S1").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(120), rows[0].FollowerCount)
	assert.Equal(t, int64(12), rows[0].LikesCount)

	// A new calendar day gets its own row.
	third := &models.AccountSnapshot{
		StoreCode:     "S1",
		SnapshotDate:  "2026-08-30",
		FollowerCount: 125,
	}
	require.NoError(t, db.UpsertAccountSnapshot(ctx, third))
	require.NoError(t, db.Conn.Where("store_code = ?", "S1").Find(&rows).Error)
	assert.Len(t, rows, 2)
}

func TestUpsertVideoSnapshotsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	batch1 := []*models.VideoSnapshot{
		{StoreCode: "S1", VideoID: "v1", SnapshotDate: "2026-08-29", ViewCount: 10},
		{StoreCode: "S1", VideoID: "v2", SnapshotDate: "2026-08-29", ViewCount: 20},
	}
	require.NoError(t, db.UpsertVideoSnapshots(ctx, batch1))

	batch2 := []*models.VideoSnapshot{
		{StoreCode: "S1", VideoID: "v1", SnapshotDate: "2026-08-29", ViewCount: 15},
		{StoreCode: "S1", VideoID: "v3", SnapshotDate: "2026-08-29", ViewCount: 5},
	}
	require.NoError(t, db.UpsertVideoSnapshots(ctx, batch2))

	snaps, err := db.ListVideoSnapshots(ctx, "S1", "2026-08-29")
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	byID := map[string]int64{}
	for _, s := range snaps {
		byID[s.VideoID] = s.ViewCount
	}
	assert.Equal(t, int64(15), byID["v1"], "re-synced video takes the newest values")
	assert.Equal(t, int64(20), byID["v2"])
	assert.Equal(t, int64(5), byID["v3"])
}

func TestUpsertVideoSnapshotsEmpty(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.UpsertVideoSnapshots(context.Background(), nil))
}

func TestLatestAccountSnapshotOrdersByDate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Inserted newest-first on purpose: the query must order by the date
	// column, not by insertion order.
	for _, day := range []string{"2026-08-29", "2026-08-27", "2026-08-28"} {
		require.NoError(t, db.UpsertAccountSnapshot(ctx, &models.AccountSnapshot{
			StoreCode:    "S1",
			SnapshotDate: day,
		}))
	}

	snap, err := db.LatestAccountSnapshot(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "2026-08-29", snap.SnapshotDate)
}

func TestLatestAccountSnapshotMissing(t *testing.T) {
	db := openTestDB(t)
	snap, err := db.LatestAccountSnapshot(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestTryInsertLockConflictIsSilent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := &models.SyncLock{LockKey: "store:S1", LockedBy: "a", LockedAt: 1, ExpiresAt: 100}
	b := &models.SyncLock{LockKey: "store:S1", LockedBy: "b", LockedAt: 2, ExpiresAt: 200}
	require.NoError(t, db.TryInsertLock(ctx, a))
	require.NoError(t, db.TryInsertLock(ctx, b))

	row, err := db.GetLock(ctx, "store:S1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "a", row.LockedBy, "the first insert wins, the second is a no-op")
}

func TestDeleteExpiredLockKeepsLiveRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().Unix()
	live := &models.SyncLock{LockKey: "store:S1", LockedBy: "a", LockedAt: now, ExpiresAt: now + 60}
	require.NoError(t, db.TryInsertLock(ctx, live))

	require.NoError(t, db.DeleteExpiredLock(ctx, "store:S1", now))

	row, err := db.GetLock(ctx, "store:S1")
	require.NoError(t, err)
	assert.NotNil(t, row, "an unexpired lock must survive cleanup")
}

func TestListSyncRunsFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	runs := []*models.SyncRun{
		{StoreCode: "S1", JobName: models.JobSyncUserStats, Status: models.RunStatusSuccess, RunTime: 1},
		{StoreCode: "S1", JobName: models.JobSyncVideoStats, Status: models.RunStatusFailed, RunTime: 2},
		{StoreCode: "S2", JobName: models.JobSyncUserStats, Status: models.RunStatusSkipped, RunTime: 3},
	}
	for _, r := range runs {
		require.NoError(t, db.CreateSyncRun(ctx, r))
	}

	got, err := db.ListSyncRuns(ctx, models.RunFilter{StoreCode: "S1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].RunTime, "newest first")

	got, err = db.ListSyncRuns(ctx, models.RunFilter{Status: models.RunStatusSkipped})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "S2", got[0].StoreCode)
}

func TestFinishSyncRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := &models.SyncRun{JobName: models.JobFullSync, Status: models.RunStatusRunning, RunTime: 1}
	require.NoError(t, db.CreateSyncRun(ctx, run))
	require.NotZero(t, run.ID)

	require.NoError(t, db.FinishSyncRun(ctx, run.ID, models.RunStatusSuccess, "3 stores synced", 1234))

	got, err := db.ListSyncRuns(ctx, models.RunFilter{JobName: models.JobFullSync})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RunStatusSuccess, got[0].Status)
	assert.Equal(t, int64(1234), got[0].DurationMs)
}
