package piped

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"/watch?v=abc&list=PL1", "abc", true},
		{"/shorts/xyz123", "xyz123", true},
		{"/channel/UC123", "", false},
		{"/playlist?list=PL1", "", false},
		{"/watch?v=", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := VideoID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			assert.Equal(t, "all", r.URL.Query().Get("filter"))
			fmt.Fprint(w, `{"items":[
				{"url":"/watch?v=aaa","title":"Song A","uploaderName":"Artist","views":1200,"duration":215,"thumbnail":"https://img/a.jpg"},
				{"url":"/channel/UC1","title":"A channel"},
				{"url":"/shorts/bbb","title":"Short B","views":-1,"duration":-1},
				{"url":"/watch?v=ccc","title":"Song C","views":5,"duration":100}
			]}`)
		case "/streams/m4a":
			fmt.Fprint(w, `{"audioStreams":[{"url":"https://cdn/webm","format":"WEBMA_OPUS"},{"url":"https://cdn/m4a","format":"M4A"}]}`)
		case "/streams/webm":
			fmt.Fprint(w, `{"audioStreams":[{"url":"https://cdn/webm","format":"WEBMA_OPUS"}]}`)
		case "/streams/none":
			fmt.Fprint(w, `{"audioStreams":[]}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := New(config.PipedConfig{URL: srv.URL + "/", SearchLimit: 3}, srv.Client())
	out, err := c.Search(context.Background(), "song")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, track.Candidate{
		Source:     track.YouTube,
		ExternalID: "aaa",
		Title:      "Song A",
		Artist:     "Artist",
		PlayCount:  1200,
		DurationMs: 215_000,
		ArtworkURL: "https://img/a.jpg",
	}, out[0])
	assert.Equal(t, "bbb", out[1].ExternalID)
	assert.Equal(t, "YouTube", out[1].Artist)
	assert.Zero(t, out[1].PlayCount)
	assert.Zero(t, out[1].DurationMs)
}

func TestResolve(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	c := New(config.PipedConfig{URL: srv.URL}, srv.Client())
	ctx := context.Background()

	u, err := c.Resolve(ctx, "m4a", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/m4a", u)

	u, err = c.Resolve(ctx, "webm", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/webm", u)

	_, err = c.Resolve(ctx, "none", "")
	assert.ErrorIs(t, err, apperrors.ErrTrackNotFound)

	_, err = c.Resolve(ctx, "broken", "")
	assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)

	_, err = c.Resolve(ctx, "../x", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
