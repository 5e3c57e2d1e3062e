package flickr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"photo_syncer/internal/domain"
)

const (
	SourceID   = "flickr"
	SourceName = "Flickr"

	DefaultDetailPageBase = "https://www.flickr.com/photos"
)

// Config holds Flickr source configuration.
type Config struct {
	OwnerID         string
	ImageHost       string
	DetailPageBase  string
	DefaultCategory string
}

// HTMLFetcher downloads a page and returns its body.
type HTMLFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Source scrapes a public Flickr photostream.
type Source struct {
	fetcher   HTMLFetcher
	extractor *Extractor
	pacer     Pacer
	category  string
	logger    *slog.Logger
}

// New creates a new Flickr source.
func New(cfg Config, fetcher HTMLFetcher, pacer Pacer, logger *slog.Logger) *Source {
	if cfg.DetailPageBase == "" {
		cfg.DetailPageBase = DefaultDetailPageBase
	}
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = domain.DefaultCategory
	}
	return &Source{
		fetcher:   fetcher,
		extractor: NewExtractor(cfg.ImageHost, cfg.DetailPageBase, cfg.OwnerID),
		pacer:     pacer,
		category:  cfg.DefaultCategory,
		logger:    logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchPhotos reads the listing page at baseURL and then each photo page in
// turn. A failing photo page is reported in its result and does not stop the
// loop; only a listing failure or a cancelled context returns an error.
func (s *Source) FetchPhotos(ctx context.Context, baseURL string) ([]domain.PhotoResult, error) {
	listing, err := s.fetcher.Fetch(ctx, baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	candidates, err := s.extractor.ExtractCandidates(listing)
	if err != nil {
		return nil, err
	}

	s.logger.Info("found photos on listing", "count", len(candidates), "url", baseURL)

	results := make([]domain.PhotoResult, 0, len(candidates))
	for i, c := range candidates {
		if err := s.pacer.Wait(ctx); err != nil {
			return results, fmt.Errorf("wait before photo %s: %w", c.SourceID, err)
		}

		photo, err := s.fetchPhoto(ctx, c)
		results = append(results, domain.PhotoResult{
			Candidate: c,
			Photo:     photo,
			Err:       err,
		})

		s.logger.Debug("processed photo",
			"index", i+1,
			"total", len(candidates),
			"source_id", c.SourceID,
			"ok", err == nil,
		)
	}

	return results, nil
}

func (s *Source) fetchPhoto(ctx context.Context, c domain.Candidate) (*domain.Photo, error) {
	page, err := s.fetcher.Fetch(ctx, c.DetailPageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch photo page: %w", err)
	}

	detail, err := ExtractDetail(page)
	if err != nil {
		return nil, err
	}

	return &domain.Photo{
		ID:            uuid.NewString(),
		SourceID:      c.SourceID,
		URL:           c.URL,
		DetailPageURL: c.DetailPageURL,
		Title:         detail.Title,
		Description:   detail.Description,
		Category:      s.category,
		DateTaken:     detail.DateTaken,
	}, nil
}
