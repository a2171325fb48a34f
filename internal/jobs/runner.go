package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/shoplens/tiksync/internal/batch"
	"github.com/shoplens/tiksync/internal/config"
	"github.com/shoplens/tiksync/internal/models"
	"github.com/shoplens/tiksync/internal/syncer"
	"github.com/shoplens/tiksync/internal/token"
	"github.com/shoplens/tiksync/pkg/logger"
)

// Sync type selectors accepted by SyncOne and SyncAll.
const (
	SyncTypeUser  = "user"
	SyncTypeVideo = "video"
	SyncTypeAll   = "all"
)

// Runner exposes the entry points the scheduler and the admin API call
// into. It fans per-store work out through the batch runner; an individual
// store's failure never prevents its siblings from being attempted.
type Runner struct {
	logger *logger.Logger
	config *config.Config

	repo   models.Repository
	syncer models.Orchestrator
	tokens *token.Provider
}

func NewRunner(repo models.Repository, orch models.Orchestrator, tokens *token.Provider, logger *logger.Logger, config *config.Config) *Runner {
	return &Runner{
		repo:   repo,
		syncer: orch,
		tokens: tokens,
		logger: logger,
		config: config,
	}
}

// SyncOne runs a single store's sync synchronously. Used by admin-triggered
// requests, which surface the classified result as the HTTP response.
func (r *Runner) SyncOne(ctx context.Context, storeCode, which string) (*models.SyncResult, error) {
	switch which {
	case SyncTypeUser:
		return r.syncer.SyncUserStats(ctx, storeCode), nil
	case SyncTypeVideo:
		return r.syncer.SyncVideoStats(ctx, storeCode), nil
	case SyncTypeAll:
		return r.syncer.FullSync(ctx, storeCode), nil
	default:
		return nil, fmt.Errorf("unknown sync type %q", which)
	}
}

// SyncAll enumerates the connected stores and drives them through the batch
// runner. Account-info syncs run at higher concurrency than the heavier
// paginated video syncs.
func (r *Runner) SyncAll(ctx context.Context, which string) (*models.BulkResult, error) {
	jobName, concurrency, err := r.planBulk(which)
	if err != nil {
		return nil, err
	}

	stores, err := r.repo.ListConnectedStores(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate stores: %w", err)
	}

	start := time.Now()
	globalRun := &models.SyncRun{
		JobName: jobName,
		RunTime: start.Unix(),
		Status:  models.RunStatusRunning,
		Message: fmt.Sprintf("syncing %d stores", len(stores)),
	}
	if err := r.repo.CreateSyncRun(ctx, globalRun); err != nil {
		r.logger.Error("Failed to record global run start ", "job ", jobName, " error ", err)
	}

	bulk := &models.BulkResult{JobName: jobName, Total: len(stores)}
	position := make(map[string]int, len(stores))
	for i, store := range stores {
		position[store.StoreCode] = i
	}
	results := make([]*models.SyncResult, len(stores))

	batch.Run(ctx, stores, func(ctx context.Context, store *models.Store) error {
		sr, err := r.SyncOne(ctx, store.StoreCode, which)
		if err != nil {
			sr = &models.SyncResult{
				StoreCode: store.StoreCode,
				JobName:   jobName,
				Message:   "sync failed",
				Error:     syncer.Redact(err.Error()),
			}
		}
		// Store codes are unique, so each goroutine writes its own slot.
		results[position[store.StoreCode]] = sr
		return nil
	}, batch.Options[*models.Store]{
		Concurrency:         concurrency,
		DelayBetweenBatches: r.config.BatchDelay,
		OnProgress: func(processed, total int) {
			r.logger.Info("Bulk sync progress ", "job ", jobName, " processed ", processed, " total ", total)
		},
	})

	for _, sr := range results {
		if sr == nil {
			continue
		}
		bulk.Results = append(bulk.Results, sr)
		switch {
		case sr.Skipped:
			bulk.Skipped++
		case sr.Success:
			bulk.Successful++
		default:
			bulk.Failed++
		}
	}
	bulk.DurationMs = time.Since(start).Milliseconds()

	status := models.RunStatusSuccess
	if bulk.Failed > 0 {
		status = models.RunStatusFailed
	}
	message := fmt.Sprintf("%d total, %d successful, %d failed, %d skipped",
		bulk.Total, bulk.Successful, bulk.Failed, bulk.Skipped)
	if globalRun.ID != 0 {
		if err := r.repo.FinishSyncRun(ctx, globalRun.ID, status, message, bulk.DurationMs); err != nil {
			r.logger.Error("Failed to finalize global run ", "job ", jobName, " error ", err)
		}
	}

	r.logger.Info("Bulk sync finished ", "job ", jobName, " summary ", message)
	return bulk, nil
}

// RefreshExpiringTokens refreshes credentials expiring inside the lookahead
// window. It shares the batch runner but not the store lock: refresh is a
// prerequisite for data sync, not mutually exclusive with it.
func (r *Runner) RefreshExpiringTokens(ctx context.Context) (*models.BulkResult, error) {
	stores, err := r.tokens.ListExpiring(ctx, r.config.TokenRefreshLookahead)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate expiring tokens: %w", err)
	}

	start := time.Now()
	bulk := &models.BulkResult{JobName: models.JobRefreshTokens, Total: len(stores)}

	res := batch.RunWithRetry(ctx, stores, func(ctx context.Context, store *models.Store) error {
		return r.tokens.RefreshStoreToken(ctx, store)
	}, batch.Options[*models.Store]{
		Concurrency:         r.config.AccountSyncConcurrency,
		DelayBetweenBatches: r.config.BatchDelay,
		OnItemError: func(store *models.Store, err error) {
			r.logger.Error("Token refresh failed ", "store ", store.StoreCode, " error ", err)
		},
	}, r.config.SyncMaxRetries, r.config.SyncRetryDelay)

	for _, item := range res.Results {
		sr := &models.SyncResult{
			StoreCode: item.Item.StoreCode,
			JobName:   models.JobRefreshTokens,
			Success:   item.Err == nil,
		}
		if item.Err != nil {
			sr.Error = syncer.Redact(item.Err.Error())
			sr.Message = "token refresh failed"
		} else {
			sr.Message = "token refreshed"
		}
		bulk.Results = append(bulk.Results, sr)
	}
	bulk.Successful = res.Successful
	bulk.Failed = res.Failed
	bulk.DurationMs = time.Since(start).Milliseconds()

	run := &models.SyncRun{
		JobName: models.JobRefreshTokens,
		RunTime: start.Unix(),
		Status:  models.RunStatusSuccess,
		Message: fmt.Sprintf("%d total, %d refreshed, %d failed", bulk.Total, bulk.Successful, bulk.Failed),
	}
	if bulk.Failed > 0 {
		run.Status = models.RunStatusFailed
	}
	run.DurationMs = bulk.DurationMs
	if err := r.repo.CreateSyncRun(ctx, run); err != nil {
		r.logger.Error("Failed to record token refresh run ", "error ", err)
	}

	return bulk, nil
}

func (r *Runner) planBulk(which string) (jobName string, concurrency int, err error) {
	switch which {
	case SyncTypeUser:
		return models.JobSyncUserStats, r.config.AccountSyncConcurrency, nil
	case SyncTypeVideo:
		return models.JobSyncVideoStats, r.config.VideoSyncConcurrency, nil
	case SyncTypeAll:
		return models.JobFullSync, r.config.VideoSyncConcurrency, nil
	default:
		return "", 0, fmt.Errorf("unknown sync type %q", which)
	}
}
