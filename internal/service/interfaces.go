package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"photo_syncer/internal/domain"
)

type PhotoStore interface {
	ListURLs(ctx context.Context) ([]string, error)
	InsertBatch(ctx context.Context, photos []domain.Photo) (int64, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, syncType string) (*domain.SyncState, error)
	Update(ctx context.Context, state *domain.SyncState) error
}

type Source interface {
	ID() string
	Name() string
	FetchPhotos(ctx context.Context, baseURL string) ([]domain.PhotoResult, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, photo *domain.Photo) error
	Close() error
}

type Metrics interface {
	RecordSyncRun(outcome string)
	RecordPhotosAdded(count int)
	RecordDetailFailures(count int)
}
