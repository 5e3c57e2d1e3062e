package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"photo_syncer/internal/domain"
)

var header = []string{"id", "url", "title", "category", "description", "date_taken"}

type PhotoLister interface {
	List(ctx context.Context) ([]domain.Photo, error)
}

// WriteCSV writes every stored photo as one CSV row and returns the row count.
func WriteCSV(ctx context.Context, photos PhotoLister, w io.Writer) (int, error) {
	list, err := photos.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list photos: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	for _, p := range list {
		dateTaken := ""
		if p.DateTaken != nil {
			dateTaken = *p.DateTaken
		}
		row := []string{p.ID, p.URL, p.Title, p.Category, p.Description, dateTaken}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write photo %s: %w", p.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(list), nil
}
