package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"photo_syncer/internal/domain"
)

const photoColumns = 7

type PhotoStore struct {
	db *sqlx.DB
}

func NewPhotoStore(db *sqlx.DB) *PhotoStore {
	return &PhotoStore{db: db}
}

func (s *PhotoStore) ListURLs(ctx context.Context) ([]string, error) {
	var urls []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &urls, `SELECT url FROM photos`)
	return urls, err
}

// InsertBatch writes photos in a single statement. Rows whose url already
// exists are skipped; the returned count is the number actually inserted.
func (s *PhotoStore) InsertBatch(ctx context.Context, photos []domain.Photo) (int64, error) {
	if len(photos) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO photos (id, source_id, url, title, description, category, date_taken) VALUES ")
	args := make([]interface{}, 0, len(photos)*photoColumns)

	for i, p := range photos {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for col := 0; col < photoColumns; col++ {
			if col > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*photoColumns + col + 1))
		}
		sb.WriteString(")")
		args = append(args, p.ID, p.SourceID, p.URL, p.Title, p.Description, p.Category, p.DateTaken)
	}
	sb.WriteString(" ON CONFLICT (url) DO NOTHING")

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PhotoStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, `SELECT COUNT(*) FROM photos`)
	return n, err
}

// List returns all photos, most recently taken first.
func (s *PhotoStore) List(ctx context.Context) ([]domain.Photo, error) {
	query := `
		SELECT id, source_id, url, title, description, category,
			to_char(date_taken, 'YYYY-MM-DD') AS date_taken
		FROM photos
		ORDER BY photos.date_taken DESC NULLS LAST, created_at DESC`

	var photos []domain.Photo
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &photos, query)
	return photos, err
}
