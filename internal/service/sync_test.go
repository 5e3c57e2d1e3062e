package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"photo_syncer/internal/config"
	"photo_syncer/internal/domain"
	"photo_syncer/internal/service/mocks"
	"photo_syncer/testdata/utils"
)

type recordingMetrics struct {
	mu             sync.Mutex
	outcomes       []string
	added          int
	detailFailures int
}

func (m *recordingMetrics) RecordSyncRun(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordPhotosAdded(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added += count
}

func (m *recordingMetrics) RecordDetailFailures(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailFailures += count
}

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	photos    *mocks.MockPhotoStore
	syncState *mocks.MockSyncStateStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher
	metrics   *recordingMetrics

	service *SyncService
	cfg     config.SyncConfig
	logger  *slog.Logger
}

const baseURL = "https://www.flickr.com/photos/201748906@N08/with/54260070380/"

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.photos = mocks.NewMockPhotoStore(s.ctrl)
	s.syncState = mocks.NewMockSyncStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.metrics = &recordingMetrics{}

	s.cfg = config.SyncConfig{}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.source.EXPECT().ID().Return("flickr").AnyTimes()
	s.source.EXPECT().Name().Return("Flickr").AnyTimes()

	s.service = s.newService(s.cfg, s.publisher)
}

func (s *SyncServiceTestSuite) newService(cfg config.SyncConfig, publisher Publisher) *SyncService {
	return NewSyncService(
		s.source,
		s.photos,
		s.syncState,
		s.txManager,
		publisher,
		s.metrics,
		s.logger,
		cfg,
	)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func photo(id, url string) domain.Photo {
	return domain.Photo{
		ID:          id,
		SourceID:    id,
		URL:         url,
		Title:       "title " + id,
		Category:    "street",
		DateTaken:   utils.Ptr("2021-03-05"),
		Description: "",
	}
}

func okResult(p domain.Photo) domain.PhotoResult {
	return domain.PhotoResult{
		Candidate: domain.Candidate{URL: p.URL, SourceID: p.SourceID},
		Photo:     &p,
	}
}

func errResult(sourceID string, err error) domain.PhotoResult {
	return domain.PhotoResult{
		Candidate: domain.Candidate{SourceID: sourceID},
		Err:       err,
	}
}

func (s *SyncServiceTestSuite) expectStateAdvance(ctx context.Context, added int64) {
	s.syncState.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, state *domain.SyncState) error {
			s.Equal("flickr", state.SyncType)
			s.Require().NotNil(state.LastSync)
			s.WithinDuration(time.Now(), *state.LastSync, 5*time.Second)
			s.Equal(added, state.TotalAdded)
			return nil
		},
	)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_NewPhotos() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	b := photo("2", "https://x/b.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a), okResult(b)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a, b}).Return(int64(2), nil)
	s.expectStateAdvance(ctx, 2)
	s.publisher.EXPECT().Publish(ctx, &a).Return(nil)
	s.publisher.EXPECT().Publish(ctx, &b).Return(nil)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(2, result.Added)
	s.Equal(2, result.Total)
	s.Equal(0, result.Failed)
	s.Equal("Added 2 new photos out of 2 from Flickr.", result.Message)
	s.NoError(result.Err)
	s.Equal([]string{OutcomeSuccess}, s.metrics.outcomes)
	s.Equal(2, s.metrics.added)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_OnlyNewURLsInserted() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	b := photo("2", "https://x/b.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return([]string{"https://x/a.jpg"}, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a), okResult(b)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{b}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)
	s.publisher.EXPECT().Publish(ctx, &b).Return(nil)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(1, result.Added)
	s.Equal(2, result.Total)
	s.Equal("Added 1 new photos out of 2 from Flickr.", result.Message)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_NothingNew() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return([]string{"https://x/a.jpg"}, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a)}, nil)
	s.expectStateAdvance(ctx, 0)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(0, result.Added)
	s.Equal(1, result.Total)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_SecondRunAddsNothing() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	b := photo("2", "https://x/b.jpg")
	results := []domain.PhotoResult{okResult(a), okResult(b)}

	gomock.InOrder(
		s.photos.EXPECT().ListURLs(ctx).Return(nil, nil),
		s.photos.EXPECT().ListURLs(ctx).Return([]string{a.URL, b.URL}, nil),
	)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return(results, nil).Times(2)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a, b}).Return(int64(2), nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil).Times(2)

	service := s.newService(s.cfg, nil)

	first := service.SyncPhotos(ctx, baseURL)
	s.True(first.Success)
	s.Equal(2, first.Added)

	second := service.SyncPhotos(ctx, baseURL)
	s.True(second.Success)
	s.Equal(0, second.Added)
	s.Equal(2, second.Total)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_DetailFailureSkipped() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	c := photo("3", "https://x/c.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return([]string{"https://x/c.jpg"}, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{
		okResult(a),
		errResult("2", errors.New("fetch photo page: 500 Internal Server Error")),
		okResult(c),
	}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)
	s.publisher.EXPECT().Publish(ctx, &a).Return(nil)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(2, result.Total)
	s.Equal(1, result.Added)
	s.Equal(1, result.Failed)
	s.Equal(1, s.metrics.detailFailures)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_DuplicateURLInSameRun() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	dup := photo("2", "https://x/a.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a), okResult(dup)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)
	s.publisher.EXPECT().Publish(ctx, &a).Return(nil)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(1, result.Added)
	s.Equal(2, result.Total)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_ListingFailure() {
	ctx := context.Background()

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return(nil, errors.New("fetch listing: 404 Not Found"))

	result := s.service.SyncPhotos(ctx, baseURL)

	s.False(result.Success)
	s.ErrorIs(result.Err, ErrListingFailed)
	s.Equal("fetch photos: fetch listing: 404 Not Found", result.Error)
	s.Equal(0, result.Added)
	s.Equal([]string{OutcomeFetchFailed}, s.metrics.outcomes)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_StoreReadErrorTreatsAllAsNew() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return(nil, errors.New("connection refused"))
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)
	s.publisher.EXPECT().Publish(ctx, &a).Return(nil)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(1, result.Added)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_InsertFailureStillAdvancesLastSync() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	b := photo("2", "https://x/b.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a), okResult(b)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a, b}).Return(int64(0), errors.New("duplicate key"))
	s.expectStateAdvance(ctx, 0)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.False(result.Success)
	s.Equal(0, result.Added)
	s.Equal(2, result.Total)
	s.Contains(result.Error, "insert photos")
	s.Empty(result.Message)
	s.Equal([]string{OutcomeInsertFailed}, s.metrics.outcomes)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_StrictTimestamp_InsertFailureKeepsLastSync() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	service := s.newService(config.SyncConfig{StrictTimestamp: true}, s.publisher)

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a)}, nil)
	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a}).Return(int64(0), errors.New("db down"))

	result := service.SyncPhotos(ctx, baseURL)

	s.False(result.Success)
	s.Equal(0, result.Added)
	s.Contains(result.Error, "db down")
}

func (s *SyncServiceTestSuite) TestSyncPhotos_StrictTimestamp_Success() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	service := s.newService(config.SyncConfig{StrictTimestamp: true}, nil)

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a)}, nil)
	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)

	result := service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(1, result.Added)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_StateUpdateErrorIsNotFatal() {
	ctx := context.Background()

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return(nil, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(errors.New("read-only"))

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(0, result.Total)
	s.Equal("Added 0 new photos out of 0 from Flickr.", result.Message)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_PublishErrorIsNotFatal() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)
	s.publisher.EXPECT().Publish(ctx, &a).Return(errors.New("channel closed"))

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(1, result.Added)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_RejectsConcurrentRun() {
	s.service.running.Lock()
	defer s.service.running.Unlock()

	result := s.service.SyncPhotos(context.Background(), baseURL)

	s.False(result.Success)
	s.ErrorIs(result.Err, ErrSyncInProgress)
	s.Equal([]string{OutcomeBusy}, s.metrics.outcomes)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_UnreadableSyncStateStillAdvancesLastSync() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")

	s.syncState.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("conn reset")).AnyTimes()
	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)
	s.publisher.EXPECT().Publish(ctx, &a).Return(nil)

	result := s.service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(1, result.Added)
}

func (s *SyncServiceTestSuite) TestSyncPhotos_TotalAddedCountsRowsActuallyInserted() {
	ctx := context.Background()
	a := photo("1", "https://x/a.jpg")
	b := photo("2", "https://x/b.jpg")
	service := s.newService(s.cfg, nil)

	s.photos.EXPECT().ListURLs(ctx).Return(nil, nil)
	s.source.EXPECT().FetchPhotos(ctx, baseURL).Return([]domain.PhotoResult{okResult(a), okResult(b)}, nil)
	s.photos.EXPECT().InsertBatch(ctx, []domain.Photo{a, b}).Return(int64(1), nil)
	s.expectStateAdvance(ctx, 1)

	result := service.SyncPhotos(ctx, baseURL)

	s.True(result.Success)
	s.Equal(2, result.Added)
}

func (s *SyncServiceTestSuite) TestLastSync() {
	ctx := context.Background()
	now := time.Now()

	s.syncState.EXPECT().Get(ctx, "flickr").Return(&domain.SyncState{SyncType: "flickr", LastSync: &now}, nil)
	got := s.service.LastSync(ctx)
	s.Require().NotNil(got)
	s.Equal(now, *got)

	s.syncState.EXPECT().Get(ctx, "flickr").Return(nil, errors.New("no table"))
	s.Nil(s.service.LastSync(ctx))
}
