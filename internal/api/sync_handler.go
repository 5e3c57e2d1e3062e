package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"photo_syncer/internal/domain"
	"photo_syncer/internal/service"
)

type syncHandler struct {
	syncer         Syncer
	photos         PhotoCounter
	db             Pinger
	defaultBaseURL string
	logger         *slog.Logger
}

func newSyncHandler(deps Deps) *syncHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &syncHandler{
		syncer:         deps.Syncer,
		photos:         deps.Photos,
		db:             deps.DB,
		defaultBaseURL: deps.DefaultBaseURL,
		logger:         logger.With("component", "api"),
	}
}

type syncRequest struct {
	BaseURL string `json:"base_url"`
}

type statusResponse struct {
	LastSync   *time.Time `json:"last_sync"`
	PhotoCount int64      `json:"photo_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Sync runs one sync and returns its result.
// POST /api/sync
func (h *syncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = h.defaultBaseURL
	}
	if !validBaseURL(baseURL) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "base_url must be an absolute http(s) URL"})
		return
	}

	result := h.syncer.SyncPhotos(r.Context(), baseURL)
	writeJSON(w, statusFor(result), result)
}

// Status reports the last sync time and the number of stored photos.
// GET /api/sync/status
func (h *syncHandler) Status(w http.ResponseWriter, r *http.Request) {
	count, err := h.photos.Count(r.Context())
	if err != nil {
		h.logger.Error("count photos", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "count photos failed"})
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		LastSync:   h.syncer.LastSync(r.Context()),
		PhotoCount: count,
	})
}

// GET /healthz
func (h *syncHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(result domain.SyncResult) int {
	switch {
	case result.Success:
		return http.StatusOK
	case errors.Is(result.Err, service.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(result.Err, service.ErrListingFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func validBaseURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
