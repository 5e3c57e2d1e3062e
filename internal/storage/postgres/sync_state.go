package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"photo_syncer/internal/domain"
)

type SyncStateStore struct {
	db *sqlx.DB
}

func NewSyncStateStore(db *sqlx.DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

func (s *SyncStateStore) Get(ctx context.Context, syncType string) (*domain.SyncState, error) {
	var state domain.SyncState
	query := `
		SELECT id, sync_type, last_sync, total_added
		FROM sync_metadata
		WHERE sync_type = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, syncType)
	if errors.Is(err, sql.ErrNoRows) {
		// Never synced
		return &domain.SyncState{SyncType: syncType}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Update records a sync attempt. last_sync never moves backwards and
// state.TotalAdded is added to the stored total.
func (s *SyncStateStore) Update(ctx context.Context, state *domain.SyncState) error {
	query := `
		INSERT INTO sync_metadata (sync_type, last_sync, total_added)
		VALUES ($1, $2, $3)
		ON CONFLICT (sync_type) DO UPDATE SET
			last_sync = GREATEST(sync_metadata.last_sync, EXCLUDED.last_sync),
			total_added = sync_metadata.total_added + EXCLUDED.total_added`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.SyncType,
		state.LastSync,
		state.TotalAdded,
	)
	return err
}
