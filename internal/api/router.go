package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"photo_syncer/internal/domain"
)

type Syncer interface {
	SyncPhotos(ctx context.Context, baseURL string) domain.SyncResult
	LastSync(ctx context.Context) *time.Time
}

type PhotoCounter interface {
	Count(ctx context.Context) (int64, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Syncer         Syncer
	Photos         PhotoCounter
	DB             Pinger
	DefaultBaseURL string
	Metrics        http.Handler
	Logger         *slog.Logger
}

// NewRouter mounts the sync API, health check and, when set, the metrics handler.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	h := newSyncHandler(deps)

	r.Get("/healthz", h.Health)

	r.Route("/api/sync", func(r chi.Router) {
		r.Post("/", h.Sync)
		r.Get("/status", h.Status)
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	return r
}
