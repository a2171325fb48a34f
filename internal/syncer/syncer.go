package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/shoplens/tiksync/internal/config"
	"github.com/shoplens/tiksync/internal/locker"
	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/pkg/logger"
)

const snapshotDateLayout = "2006-01-02"

// Syncer performs one store's metric sync end-to-end: token check, lock
// acquisition, fetch, idempotent upsert, run-log record. It is the sole
// writer of snapshot rows while a sync is in flight.
type Syncer struct {
	logger *logger.Logger
	config *config.Config

	repo     models.Repository
	tokens   models.TokenProvider
	api      models.MetricsAPI
	lock     *locker.StoreLock
	notifier models.Notifier
}

func New(
	repo models.Repository,
	tokens models.TokenProvider,
	api models.MetricsAPI,
	lock *locker.StoreLock,
	notifier models.Notifier,
	logger *logger.Logger,
	config *config.Config,
) *Syncer {
	return &Syncer{
		repo:     repo,
		tokens:   tokens,
		api:      api,
		lock:     lock,
		notifier: notifier,
		logger:   logger,
		config:   config,
	}
}

// SyncUserStats snapshots the store's account metrics for today.
func (s *Syncer) SyncUserStats(ctx context.Context, storeCode string) *models.SyncResult {
	return s.runLocked(ctx, storeCode, models.JobSyncUserStats, s.syncAccountStage)
}

// SyncVideoStats snapshots the store's per-video metrics for today.
func (s *Syncer) SyncVideoStats(ctx context.Context, storeCode string) *models.SyncResult {
	return s.runLocked(ctx, storeCode, models.JobSyncVideoStats, s.syncVideoStage)
}

// FullSync runs the account stage then the video stage under a single lock
// acquisition. When the account stage fails the video stage is skipped and
// the composite reports the first failure.
func (s *Syncer) FullSync(ctx context.Context, storeCode string) *models.SyncResult {
	return s.runLocked(ctx, storeCode, models.JobFullSync, func(ctx context.Context, storeCode, token string) (string, error) {
		accountMsg, err := s.syncAccountStage(ctx, storeCode, token)
		if err != nil {
			return "", err
		}
		videoMsg, err := s.syncVideoStage(ctx, storeCode, token)
		if err != nil {
			return "", err
		}
		return accountMsg + "; " + videoMsg, nil
	})
}

// runLocked drives the per-attempt state machine shared by all sync types.
func (s *Syncer) runLocked(ctx context.Context, storeCode, jobName string, body func(ctx context.Context, storeCode, token string) (string, error)) *models.SyncResult {
	start := time.Now()
	result := &models.SyncResult{StoreCode: storeCode, JobName: jobName}

	// Cheap fail-fast before contending for the lock.
	token, err := s.tokens.GetValidToken(ctx, storeCode)
	if err != nil || token == "" {
		if err == nil {
			err = fmt.Errorf("no valid access token for store %s", storeCode)
		}
		s.logger.Warn("Sync aborted, no usable token ", "store ", storeCode, " job ", jobName)
		s.finish(ctx, result, models.RunStatusFailed, "no valid access token", err, start)
		return result
	}

	var summary string
	lockRes := s.lock.WithStoreLock(ctx, storeCode, func(ctx context.Context) error {
		var bodyErr error
		summary, bodyErr = body(ctx, storeCode, token)
		return bodyErr
	})

	switch {
	case lockRes.Skipped:
		result.Skipped = true
		s.finish(ctx, result, models.RunStatusSkipped, "another sync is in progress for this store", lockRes.Err, start)
	case lockRes.Err != nil:
		message := "sync failed"
		if s.api.IsAuthFailure(lockRes.Err) {
			message = "authorization rejected by upstream, store flagged for reconnect"
			if flagErr := s.tokens.FlagNeedsReconnect(ctx, storeCode); flagErr != nil {
				s.logger.Error("Failed to flag store for reconnect ", "store ", storeCode, " error ", flagErr)
			}
			if s.notifier != nil {
				s.notifier.NotifyReconnect(storeCode, "access token rejected during "+jobName)
			}
		}
		s.finish(ctx, result, models.RunStatusFailed, message, lockRes.Err, start)
	default:
		result.Success = true
		if err := s.tokens.UpdateLastSyncTime(ctx, storeCode); err != nil {
			s.logger.Error("Failed to update last sync time ", "store ", storeCode, " error ", err)
		}
		s.finish(ctx, result, models.RunStatusSuccess, summary, nil, start)
	}
	return result
}

func (s *Syncer) syncAccountStage(ctx context.Context, storeCode, token string) (string, error) {
	info, err := s.api.GetAccountInfo(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to fetch account info: %w", err)
	}

	now := time.Now()
	snap := &models.AccountSnapshot{
		StoreCode:      storeCode,
		SnapshotDate:   now.Format(snapshotDateLayout),
		DisplayName:    info.DisplayName,
		AvatarURL:      info.AvatarURL,
		FollowerCount:  info.FollowerCount,
		FollowingCount: info.FollowingCount,
		LikesCount:     info.LikesCount,
		VideoCount:     info.VideoCount,
		SyncedAt:       now.Unix(),
	}
	if err := s.repo.UpsertAccountSnapshot(ctx, snap); err != nil {
		return "", fmt.Errorf("failed to persist account snapshot: %w", err)
	}

	return fmt.Sprintf("account snapshot saved, %d followers", info.FollowerCount), nil
}

func (s *Syncer) syncVideoStage(ctx context.Context, storeCode, token string) (string, error) {
	videos, err := s.api.FetchAllVideos(ctx, token, s.config.MaxVideoItems)
	if err != nil {
		return "", fmt.Errorf("failed to fetch video list: %w", err)
	}

	now := time.Now()
	date := now.Format(snapshotDateLayout)
	snaps := make([]*models.VideoSnapshot, 0, len(videos))
	for _, v := range videos {
		snaps = append(snaps, &models.VideoSnapshot{
			StoreCode:    storeCode,
			VideoID:      v.ID,
			SnapshotDate: date,
			Title:        v.Title,
			CoverURL:     v.CoverURL,
			ShareURL:     v.ShareURL,
			CreateTime:   v.CreateTime,
			ViewCount:    v.ViewCount,
			LikeCount:    v.LikeCount,
			CommentCount: v.CommentCount,
			ShareCount:   v.ShareCount,
			SyncedAt:     now.Unix(),
		})
	}
	if err := s.repo.UpsertVideoSnapshots(ctx, snaps); err != nil {
		return "", fmt.Errorf("failed to persist video snapshots: %w", err)
	}

	return fmt.Sprintf("%d video snapshots saved", len(snaps)), nil
}

// finish records the attempt's terminal outcome. The run log is a history,
// not a snapshot: every attempt appends exactly one row, and write failures
// of the row itself are logged only.
func (s *Syncer) finish(ctx context.Context, result *models.SyncResult, status, message string, cause error, start time.Time) {
	result.DurationMs = time.Since(start).Milliseconds()
	result.Message = message

	rawError := ""
	if cause != nil {
		rawError = Redact(cause.Error())
		if status == models.RunStatusFailed {
			result.Error = rawError
		}
	}

	run := &models.SyncRun{
		StoreCode:  result.StoreCode,
		JobName:    result.JobName,
		RunTime:    start.Unix(),
		Status:     status,
		Message:    message,
		RawError:   rawError,
		DurationMs: result.DurationMs,
	}
	if err := s.repo.CreateSyncRun(ctx, run); err != nil {
		s.logger.Error("Failed to write sync run record ", "store ", result.StoreCode, " job ", result.JobName, " error ", err)
	}

	syncRunsTotal.WithLabelValues(result.JobName, status).Inc()
	syncDuration.WithLabelValues(result.JobName).Observe(time.Since(start).Seconds())
}
