package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
)

type fakeSearcher struct {
	lastReq searcher.Request
	err     error
	url     string
}

func (f *fakeSearcher) Search(_ context.Context, req searcher.Request) (*searcher.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &searcher.Response{Result: &engine.Result{
		Query:   req.Query,
		Mode:    req.Mode,
		Results: []track.Candidate{{Source: track.YouTube, ExternalID: "abc", Title: "Song"}},
	}}, nil
}

func (f *fakeSearcher) Resolve(_ context.Context, key track.Key, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url + key.ExternalID, nil
}

func serve(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSearch(t *testing.T) {
	fs := &fakeSearcher{}
	h := New(fs, nil, 50)

	rec := serve(h.Search, "/api/v1/search?q=cadillac&source=yt&limit=500")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, searcher.Request{Query: "cadillac", Mode: engine.ModeYouTube, Limit: 50, Origin: searcher.OriginAPI}, fs.lastReq)

	var body struct {
		Query   string            `json:"query"`
		Results []track.Candidate `json:"results"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "cadillac", body.Query)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "abc", body.Results[0].ExternalID)
}

func TestSearchValidation(t *testing.T) {
	h := New(&fakeSearcher{}, nil, 50)
	for _, target := range []string{
		"/api/v1/search",
		"/api/v1/search?q=%20%20",
		"/api/v1/search?q=x&limit=0",
		"/api/v1/search?q=x&limit=abc",
		"/api/v1/search?q=x&source=spotify",
	} {
		assert.Equal(t, http.StatusBadRequest, serve(h.Search, target).Code, target)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	h := New(&fakeSearcher{err: fmt.Errorf("engine: %w", apperrors.ErrProviderUnavailable)}, nil, 50)
	rec := serve(h.Search, "/api/v1/search?q=x")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"search failed","code":"provider_unavailable"}`, rec.Body.String())
}

func TestResolve(t *testing.T) {
	h := New(&fakeSearcher{url: "https://cdn/"}, nil, 50)

	rec := serve(h.Resolve, "/api/v1/resolve?source=sc&id=42")
	require.Equal(t, http.StatusOK, rec.Code)
	var body resolveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, resolveResponse{Source: track.SoundCloud, ExternalID: "42", URL: "https://cdn/42"}, body)

	assert.Equal(t, http.StatusBadRequest, serve(h.Resolve, "/api/v1/resolve?source=deezer&id=1").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h.Resolve, "/api/v1/resolve?source=yt").Code)

	h = New(&fakeSearcher{err: apperrors.ErrTrackNotFound}, nil, 50)
	assert.Equal(t, http.StatusNotFound, serve(h.Resolve, "/api/v1/resolve?source=yt&id=1").Code)
}

func TestCacheEndpointsWhenDisabled(t *testing.T) {
	h := New(&fakeSearcher{}, nil, 50)

	rec := serve(h.CacheStats, "/api/v1/cache/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())

	assert.Equal(t, http.StatusServiceUnavailable, serve(h.CacheInvalidate, "/api/v1/cache/invalidate").Code)
}
