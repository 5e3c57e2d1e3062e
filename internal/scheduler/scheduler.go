package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"photo_syncer/internal/domain"
	"photo_syncer/internal/service"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	SyncPhotos(ctx context.Context, baseURL string) domain.SyncResult
}

type Scheduler struct {
	syncer     Syncer
	baseURL    string
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(syncer Syncer, baseURL string, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:     syncer,
		baseURL:    baseURL,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start runs a sync immediately and then once per interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "base_url", s.baseURL)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	syncCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		syncCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result := s.syncer.SyncPhotos(syncCtx, s.baseURL)
	switch {
	case errors.Is(result.Err, service.ErrSyncInProgress):
		s.logger.Info("skipping tick, sync already running")
	case !result.Success:
		s.logger.Error("sync failed", "error", result.Error)
	}
}
