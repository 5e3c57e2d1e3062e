package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"photo_syncer/internal/config"
	"photo_syncer/internal/domain"
)

// Run outcomes reported to Metrics.
const (
	OutcomeSuccess      = "success"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeInsertFailed = "insert_failed"
	OutcomeBusy         = "busy"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrListingFailed marks runs aborted before any photo was read.
	ErrListingFailed = errors.New("fetch photos")
)

type SyncService struct {
	source    Source
	photos    PhotoStore
	syncState SyncStateStore
	txManager TransactionManager
	publisher Publisher
	metrics   Metrics
	logger    *slog.Logger
	config    config.SyncConfig

	running sync.Mutex
}

func NewSyncService(
	source Source,
	photos PhotoStore,
	syncState SyncStateStore,
	txManager TransactionManager,
	publisher Publisher,
	metrics Metrics,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SyncService{
		source:    source,
		photos:    photos,
		syncState: syncState,
		txManager: txManager,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
	}
}

// SyncPhotos imports photos listed at baseURL that are not stored yet and
// advances the last sync time. Only one run executes at a time; a call made
// while another run is active fails with ErrSyncInProgress.
func (s *SyncService) SyncPhotos(ctx context.Context, baseURL string) domain.SyncResult {
	if !s.running.TryLock() {
		s.metrics.RecordSyncRun(OutcomeBusy)
		return failedResult(ErrSyncInProgress)
	}
	defer s.running.Unlock()

	startTime := time.Now()
	s.logger.Info("starting sync",
		"source_name", s.source.Name(),
		"base_url", baseURL,
		"strict_timestamp", s.config.StrictTimestamp,
	)

	known := s.knownURLs(ctx)

	results, err := s.source.FetchPhotos(ctx, baseURL)
	if err != nil {
		s.logger.Error("sync aborted", "error", err)
		s.metrics.RecordSyncRun(OutcomeFetchFailed)
		return failedResult(fmt.Errorf("%w: %w", ErrListingFailed, err))
	}

	photos, failed := s.collect(results)
	newPhotos := filterNew(photos, known)

	s.logger.Info("photos to import",
		"fetched", len(photos),
		"failed", failed,
		"new", len(newPhotos),
	)

	if err := s.persist(ctx, newPhotos); err != nil {
		s.logger.Error("sync failed", "error", err)
		s.metrics.RecordSyncRun(OutcomeInsertFailed)
		result := failedResult(err)
		result.Total = len(photos)
		result.Failed = failed
		result.Duration = time.Since(startTime)
		return result
	}

	s.publish(ctx, newPhotos)

	result := domain.SyncResult{
		Success:  true,
		Added:    len(newPhotos),
		Total:    len(photos),
		Failed:   failed,
		Message:  fmt.Sprintf("Added %d new photos out of %d from %s.", len(newPhotos), len(photos), s.source.Name()),
		Duration: time.Since(startTime),
	}

	s.metrics.RecordSyncRun(OutcomeSuccess)
	s.metrics.RecordPhotosAdded(result.Added)

	s.logger.Info("sync completed",
		"added", result.Added,
		"total", result.Total,
		"failed", result.Failed,
		"duration", result.Duration,
	)

	return result
}

// LastSync returns the time of the last sync attempt, or nil if there was
// none or it cannot be read.
func (s *SyncService) LastSync(ctx context.Context) *time.Time {
	state, err := s.syncState.Get(ctx, s.source.ID())
	if err != nil {
		s.logger.Warn("read sync state", "error", err)
		return nil
	}
	return state.LastSync
}

// knownURLs degrades to an empty set when the store cannot be read.
func (s *SyncService) knownURLs(ctx context.Context) map[string]struct{} {
	urls, err := s.photos.ListURLs(ctx)
	if err != nil {
		s.logger.Warn("read existing photos, continuing with none", "error", err)
		return make(map[string]struct{})
	}

	known := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		known[u] = struct{}{}
	}
	return known
}

func (s *SyncService) collect(results []domain.PhotoResult) ([]domain.Photo, int) {
	photos := make([]domain.Photo, 0, len(results))
	failed := 0

	for _, r := range results {
		if r.Err != nil || r.Photo == nil {
			failed++
			s.logger.Warn("skipping photo",
				"source_id", r.Candidate.SourceID,
				"page", r.Candidate.DetailPageURL,
				"error", r.Err,
			)
			continue
		}
		photos = append(photos, *r.Photo)
	}

	if failed > 0 {
		s.metrics.RecordDetailFailures(failed)
	}
	return photos, failed
}

// filterNew drops photos whose url is already known. A url seen twice in the
// same run is kept once.
func filterNew(photos []domain.Photo, known map[string]struct{}) []domain.Photo {
	var fresh []domain.Photo
	for _, p := range photos {
		if _, ok := known[p.URL]; ok {
			continue
		}
		known[p.URL] = struct{}{}
		fresh = append(fresh, p)
	}
	return fresh
}

// persist inserts new photos and advances the last sync time. By default the
// time advances even when the insert fails. With StrictTimestamp both happen
// in one transaction.
func (s *SyncService) persist(ctx context.Context, photos []domain.Photo) error {
	if s.config.StrictTimestamp {
		return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			inserted, err := s.insert(txCtx, photos)
			if err != nil {
				return err
			}
			if err := s.updateSyncState(txCtx, inserted); err != nil {
				return fmt.Errorf("update sync state: %w", err)
			}
			return nil
		})
	}

	inserted, insertErr := s.insert(ctx, photos)
	if err := s.updateSyncState(ctx, inserted); err != nil {
		s.logger.Error("update sync state", "error", err)
	}

	return insertErr
}

// insert returns the number of rows actually written, which is lower than
// len(photos) when some urls were stored concurrently.
func (s *SyncService) insert(ctx context.Context, photos []domain.Photo) (int64, error) {
	if len(photos) == 0 {
		return 0, nil
	}

	inserted, err := s.photos.InsertBatch(ctx, photos)
	if err != nil {
		return 0, fmt.Errorf("insert photos: %w", err)
	}

	if int(inserted) < len(photos) {
		s.logger.Warn("some photos were stored concurrently",
			"new", len(photos),
			"inserted", inserted,
		)
	}
	return inserted, nil
}

// updateSyncState does not read the current state; the store accumulates
// TotalAdded.
func (s *SyncService) updateSyncState(ctx context.Context, added int64) error {
	now := time.Now()
	return s.syncState.Update(ctx, &domain.SyncState{
		SyncType:   s.source.ID(),
		LastSync:   &now,
		TotalAdded: added,
	})
}

func (s *SyncService) publish(ctx context.Context, photos []domain.Photo) {
	if s.publisher == nil {
		return
	}

	published := 0
	for i := range photos {
		if err := s.publisher.Publish(ctx, &photos[i]); err != nil {
			s.logger.Warn("publish photo", "photo_id", photos[i].ID, "error", err)
			continue
		}
		published++
	}

	s.logger.Debug("published photos", "count", published)
}

func failedResult(err error) domain.SyncResult {
	return domain.SyncResult{
		Success: false,
		Error:   err.Error(),
		Err:     err,
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordSyncRun(string)     {}
func (nopMetrics) RecordPhotosAdded(int)    {}
func (nopMetrics) RecordDetailFailures(int) {}
