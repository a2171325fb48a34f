package jobs

import (
	"context"
	"time"

	"github.com/shoplens/tiksync/internal/config"
	"github.com/shoplens/tiksync/pkg/logger"
)

// Scheduler fires the periodic jobs. It owns no orchestration logic of its
// own; each tick goes through the same Runner contract the admin API uses,
// so concurrent triggers resolve on the store lock, not here.
type Scheduler struct {
	logger *logger.Logger
	config *config.Config

	runner *Runner
	stop   chan struct{}
}

func NewScheduler(runner *Runner, logger *logger.Logger, config *config.Config) *Scheduler {
	return &Scheduler{
		runner: runner,
		logger: logger,
		config: config,
		stop:   make(chan struct{}),
	}
}

// Start launches the ticker goroutines and returns immediately.
func (s *Scheduler) Start() {
	s.every(s.config.UserStatsInterval, "user stats sync", func(ctx context.Context) {
		if _, err := s.runner.SyncAll(ctx, SyncTypeUser); err != nil {
			s.logger.Error("Scheduled user stats sync failed ", "error ", err)
		}
	})
	s.every(s.config.VideoStatsInterval, "video stats sync", func(ctx context.Context) {
		if _, err := s.runner.SyncAll(ctx, SyncTypeVideo); err != nil {
			s.logger.Error("Scheduled video stats sync failed ", "error ", err)
		}
	})
	s.every(s.config.TokenRefreshInterval, "token refresh", func(ctx context.Context) {
		if _, err := s.runner.RefreshExpiringTokens(ctx); err != nil {
			s.logger.Error("Scheduled token refresh failed ", "error ", err)
		}
	})
	s.logger.Info("Scheduler started ",
		"userStatsInterval ", s.config.UserStatsInterval,
		" videoStatsInterval ", s.config.VideoStatsInterval,
		" tokenRefreshInterval ", s.config.TokenRefreshInterval)
}

// Stop halts all tickers. In-flight jobs finish on their own; the store
// locks' TTL bounds any holder that outlives the process.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) every(interval time.Duration, name string, job func(ctx context.Context)) {
	if interval <= 0 {
		s.logger.Warn("Scheduled job disabled ", "job ", name)
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.logger.Debug("Scheduler tick ", "job ", name)
				job(context.Background())
			}
		}
	}()
}
