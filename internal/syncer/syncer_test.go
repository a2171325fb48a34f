package syncer_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/shoplens/tiksync/internal/config"
	"github.com/shoplens/tiksync/internal/locker"
	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/internal/repository"
	"github.com/shoplens/tiksync/internal/syncer"
	"github.com/shoplens/tiksync/internal/token"
	"github.com/shoplens/tiksync/pkg/logger"
)

var errAuth = errors.New("access token rejected")

// fakeAPI is an in-memory MetricsAPI keyed by access token.
type fakeAPI struct {
	mu       sync.Mutex
	accounts map[string]*models.AccountInfo
	videos   map[string][]*models.VideoItem
	authFail map[string]bool
	calls    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		accounts: make(map[string]*models.AccountInfo),
		videos:   make(map[string][]*models.VideoItem),
		authFail: make(map[string]bool),
	}
}

func (f *fakeAPI) GetAccountInfo(ctx context.Context, accessToken string) (*models.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.authFail[accessToken] {
		return nil, errAuth
	}
	info, ok := f.accounts[accessToken]
	if !ok {
		return nil, fmt.Errorf("upstream rejected token %s", accessToken)
	}
	cp := *info
	return &cp, nil
}

func (f *fakeAPI) FetchAllVideos(ctx context.Context, accessToken string, maxItems int) ([]*models.VideoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authFail[accessToken] {
		return nil, errAuth
	}
	vids := f.videos[accessToken]
	if len(vids) > maxItems {
		vids = vids[:maxItems]
	}
	return vids, nil
}

func (f *fakeAPI) RefreshAccessToken(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	return nil, fmt.Errorf("not supported in this fake")
}

func (f *fakeAPI) IsAuthFailure(err error) bool {
	return errors.Is(err, errAuth)
}

type fixture struct {
	db    *repository.DB
	api   *fakeAPI
	sync  *syncer.Syncer
	store *models.Store
}

func testConfig() *config.Config {
	return &config.Config{
		LockTTL:                time.Minute,
		AccountSyncConcurrency: 4,
		VideoSyncConcurrency:   2,
		MaxVideoItems:          100,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := gorm.Open(sqlite.Open("file:"+path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	db, err := repository.New(conn, logger.NewNop())
	require.NoError(t, err)

	api := newFakeAPI()
	cfg := testConfig()
	tokens := token.New(db, api, logger.NewNop())
	lock := locker.New(db, locker.NewLocalAdvisory(), cfg.LockTTL, logger.NewNop())
	s := syncer.New(db, tokens, api, lock, nil, logger.NewNop(), cfg)

	store := &models.Store{
		StoreCode:        "S1",
		Name:             "First Store",
		Status:           models.StatusConnected,
		AccessToken:      "token-s1",
		AccessExpiresAt:  time.Now().Add(time.Hour).Unix(),
		RefreshToken:     "refresh-s1",
		RefreshExpiresAt: time.Now().Add(240 * time.Hour).Unix(),
	}
	require.NoError(t, db.Conn.Create(store).Error)
	api.accounts["token-s1"] = &models.AccountInfo{
		OpenID:        "open-s1",
		DisplayName:   "First Store",
		FollowerCount: 100,
		VideoCount:    2,
	}
	api.videos["token-s1"] = []*models.VideoItem{
		{ID: "v1", Title: "first", ViewCount: 10},
		{ID: "v2", Title: "second", ViewCount: 20},
	}

	return &fixture{db: db, api: api, sync: s, store: store}
}

func countRuns(t *testing.T, db *repository.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Conn.Model(&models.SyncRun{}).Count(&n).Error)
	return n
}

func today() string {
	return time.Now().Format("2006-01-02")
}

func TestSyncUserStatsSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.sync.SyncUserStats(ctx, "S1")
	assert.True(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Contains(t, res.Message, "100 followers")

	snap, err := f.db.LatestAccountSnapshot(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, today(), snap.SnapshotDate)
	assert.Equal(t, int64(100), snap.FollowerCount)

	runs, err := f.db.ListSyncRuns(ctx, models.RunFilter{StoreCode: "S1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
	assert.Equal(t, models.JobSyncUserStats, runs[0].JobName)

	// Last sync time is only touched on success.
	store, err := f.db.GetStore(ctx, "S1")
	require.NoError(t, err)
	assert.Greater(t, store.LastSyncAt, int64(0))
}

func TestSameDayResyncOverwrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.sync.SyncUserStats(ctx, "S1").Success)

	f.api.mu.Lock()
	f.api.accounts["token-s1"].FollowerCount = 120
	f.api.mu.Unlock()

	require.True(t, f.sync.SyncUserStats(ctx, "S1").Success)

	var rows []*models.AccountSnapshot
	require.NoError(t, f.db.Conn.Where("store_code = ?", "S1").Find(&rows).Error)
	require.Len(t, rows, 1, "same-day re-sync must not create a second row")
	assert.Equal(t, int64(120), rows[0].FollowerCount, "second call's values win")

	// The run log is a history, never deduplicated.
	assert.EqualValues(t, 2, countRuns(t, f.db))
}

func TestNoTokenFailsFastWithoutLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.UpdateStoreStatus(ctx, "S1", models.StatusDisconnected))

	res := f.sync.SyncUserStats(ctx, "S1")
	assert.False(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Equal(t, "no valid access token", res.Message)

	// No lock row was ever created for the attempt.
	row, err := f.db.GetLock(ctx, locker.LockKey("S1"))
	require.NoError(t, err)
	assert.Nil(t, row)

	runs, err := f.db.ListSyncRuns(ctx, models.RunFilter{StoreCode: "S1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)

	// The upstream was never contacted.
	assert.Equal(t, 0, f.api.calls)
}

func TestAuthFailureFlagsReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.authFail["token-s1"] = true

	res := f.sync.SyncUserStats(ctx, "S1")
	assert.False(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Contains(t, res.Message, "reconnect")

	store, err := f.db.GetStore(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedReconnect, store.Status)

	runs, err := f.db.ListSyncRuns(ctx, models.RunFilter{StoreCode: "S1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}

func TestFullSyncWritesBothSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.sync.FullSync(ctx, "S1")
	require.True(t, res.Success)

	snap, err := f.db.LatestAccountSnapshot(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, snap)

	videos, err := f.db.ListVideoSnapshots(ctx, "S1", today())
	require.NoError(t, err)
	assert.Len(t, videos, 2)

	runs, err := f.db.ListSyncRuns(ctx, models.RunFilter{StoreCode: "S1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.JobFullSync, runs[0].JobName)
}

func TestFullSyncFirstStageFailureSkipsSecond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Account info fails, video list would succeed; the video stage must
	// still never run.
	delete(f.api.accounts, "token-s1")

	res := f.sync.FullSync(ctx, "S1")
	assert.False(t, res.Success)

	videos, err := f.db.ListVideoSnapshots(ctx, "S1", today())
	require.NoError(t, err)
	assert.Empty(t, videos)
}

func TestConcurrentFullSyncOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*models.SyncResult, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.sync.FullSync(ctx, "S1")
		}()
	}
	wg.Wait()

	successes, skips := 0, 0
	for _, res := range results {
		if res.Success {
			successes++
		}
		if res.Skipped {
			skips++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, skips)

	// Exactly one snapshot row per table for today.
	var accountRows int64
	require.NoError(t, f.db.Conn.Model(&models.AccountSnapshot{}).
		Where("store_code = ? AND snapshot_date = ?", "S1", today()).Count(&accountRows).Error)
	assert.EqualValues(t, 1, accountRows)

	videos, err := f.db.ListVideoSnapshots(ctx, "S1", today())
	require.NoError(t, err)
	assert.Len(t, videos, 2)

	// Both attempts are in the history: one SUCCESS, one SKIPPED.
	assert.EqualValues(t, 2, countRuns(t, f.db))
	skipped, err := f.db.ListSyncRuns(ctx, models.RunFilter{Status: models.RunStatusSkipped})
	require.NoError(t, err)
	assert.Len(t, skipped, 1)
}

func TestRunLogRedactsCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Give the store a token-shaped credential that will travel through
	// the upstream error message.
	require.NoError(t, f.db.UpdateStoreTokens(ctx, "S1",
		"act.supersecret123", time.Now().Add(time.Hour).Unix(),
		"rft.alsosecret", time.Now().Add(240*time.Hour).Unix()))

	res := f.sync.SyncUserStats(ctx, "S1")
	assert.False(t, res.Success)

	runs, err := f.db.ListSyncRuns(ctx, models.RunFilter{StoreCode: "S1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotContains(t, runs[0].RawError, "act.supersecret123")
	assert.Contains(t, runs[0].RawError, "[REDACTED]")
}
