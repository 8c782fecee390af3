package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
)

// Searcher is implemented by *searcher.Service.
type Searcher interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Response, error)
	Resolve(ctx context.Context, key track.Key, locator string) (string, error)
}

type Handler struct {
	searcher   Searcher
	cache      *cache.QueryCache
	maxResults int
	logger     *slog.Logger
}

// New builds the handler. queryCache may be nil when caching is disabled.
func New(s Searcher, queryCache *cache.QueryCache, maxResults int) *Handler {
	return &Handler{
		searcher:   s,
		cache:      queryCache,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /api/v1/search?q=&source=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	mode, err := engine.ParseMode(r.URL.Query().Get("source"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "source must be one of all, soundcloud, youtube")
		return
	}
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if h.maxResults > 0 && parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	resp, err := h.searcher.Search(ctx, searcher.Request{
		Query:  query,
		Mode:   mode,
		Limit:  limit,
		Origin: searcher.OriginAPI,
	})
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.writeAppError(w, err, "search failed")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type resolveResponse struct {
	Source     track.Source `json:"source"`
	ExternalID string       `json:"external_id"`
	URL        string       `json:"url"`
}

// Resolve serves GET /api/v1/resolve?source=&id=&locator=.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	src, ok := track.ParseSource(r.URL.Query().Get("source"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "source must be soundcloud or youtube")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'id' is required")
		return
	}
	key := track.Key{Source: src, ExternalID: id}
	url, err := h.searcher.Resolve(r.Context(), key, r.URL.Query().Get("locator"))
	if err != nil {
		logger.FromContext(r.Context()).Warn("resolve failed", "key", key.String(), "error", err)
		h.writeAppError(w, err, "resolve failed")
		return
	}
	h.writeJSON(w, http.StatusOK, resolveResponse{Source: src, ExternalID: id, URL: url})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": strconv.FormatFloat(hitRate, 'f', 1, 64) + "%",
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error, fallback string) {
	status := apperrors.HTTPStatusCode(err)
	msg := fallback
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message
	case status < http.StatusInternalServerError:
		msg = err.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": msg, "code": apperrors.Code(err)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
