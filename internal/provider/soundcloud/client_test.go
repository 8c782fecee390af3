package soundcloud

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
)

const testClientID = "abcdefghijklmnopqrstuvwxyz123456"

func testConfig(base string) config.SoundCloudConfig {
	return config.SoundCloudConfig{
		Enabled:          true,
		APIURL:           base,
		DiscoverURL:      base + "/discover",
		FallbackClientID: "fallbackfallbackfallbackfallback",
		AppVersion:       "1699953100",
		SearchLimit:      60,
		MaxTitleLength:   150,
	}
}

const searchBody = `{"collection":[
 {"id":1,"title":"Cadillac","streamable":true,"playback_count":5000,"duration":200000,
  "user":{"username":"MORGENSHTERN"},
  "media":{"transcodings":[{"url":"%[1]s/hls/1","format":{"protocol":"hls"}},{"url":"%[1]s/prog/1","format":{"protocol":"progressive"}}]}},
 {"id":2,"title":"Not streamable","streamable":false,
  "media":{"transcodings":[{"url":"%[1]s/prog/2","format":{"protocol":"progressive"}}]}},
 {"id":3,"title":"HLS only","streamable":true,
  "media":{"transcodings":[{"url":"%[1]s/hls/3","format":{"protocol":"hls"}}]}},
 {"id":4,"title":"%[2]s","streamable":true,
  "media":{"transcodings":[{"url":"%[1]s/prog/4","format":{"protocol":"progressive"}}]}},
 {"id":5,"title":"No user","streamable":true,
  "media":{"transcodings":[{"url":"%[1]s/prog/5","format":{"protocol":"progressive"}}]}}
]}`

func TestSearchFiltersAndMaps(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/tracks", r.URL.Path)
		assert.Equal(t, "cadillac", r.URL.Query().Get("q"))
		assert.Equal(t, "60", r.URL.Query().Get("limit"))
		assert.Equal(t, "fallbackfallbackfallbackfallback", r.URL.Query().Get("client_id"))
		fmt.Fprintf(w, searchBody, srv.URL, strings.Repeat("x", 151))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, srv.Client())
	out, err := c.Search(context.Background(), "cadillac")
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, track.Candidate{
		Source:       track.SoundCloud,
		ExternalID:   "1",
		Title:        "Cadillac",
		Artist:       "MORGENSHTERN",
		PlayCount:    5000,
		DurationMs:   200000,
		MediaLocator: srv.URL + "/prog/1",
	}, out[0])
	assert.Equal(t, "5", out[1].ExternalID)
	assert.Equal(t, "Unknown", out[1].Artist)
}

func TestSearchUnauthorizedRefreshesKey(t *testing.T) {
	var scraped atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/tracks":
			w.WriteHeader(http.StatusUnauthorized)
		case "/discover":
			scraped.Add(1)
			fmt.Fprintf(w, `<html><script src="%s/assets/app.js"></script></html>`, strings.Replace(srv.URL, "http://", "https://", 1))
		}
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, srv.Client())
	_, err := c.Search(context.Background(), "x")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Eventually(t, func() bool { return scraped.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestResolveWithLocator(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/prog/1", r.URL.Path)
		assert.Equal(t, "fallbackfallbackfallbackfallback", r.URL.Query().Get("client_id"))
		fmt.Fprint(w, `{"url":"https://cdn.example/1.mp3"}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, srv.Client())
	u, err := c.Resolve(context.Background(), "1", srv.URL+"/prog/1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/1.mp3", u)
}

func TestResolveByID(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks/7":
			fmt.Fprintf(w, `{"id":7,"media":{"transcodings":[{"url":"%s/prog/7","format":{"protocol":"progressive"}}]}}`, srv.URL)
		case "/prog/7":
			fmt.Fprint(w, `{"url":"https://cdn.example/7.mp3"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, srv.Client())
	u, err := c.Resolve(context.Background(), "7", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/7.mp3", u)

	_, err = c.Resolve(context.Background(), "8", "")
	assert.ErrorIs(t, err, apperrors.ErrTrackNotFound)

	_, err = c.Resolve(context.Background(), "not-a-number", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
