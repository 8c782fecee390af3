// Package piped searches YouTube through a Piped API mirror and resolves
// audio-only stream URLs.
package piped

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
)

const (
	defaultUploader = "YouTube"
	preferredFormat = "M4A"
)

type Client struct {
	http   *http.Client
	cfg    config.PipedConfig
	logger *slog.Logger
}

func New(cfg config.PipedConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = provider.DefaultHTTPClient
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: slog.Default().With("component", "piped"),
	}
}

func (c *Client) Source() track.Source {
	return track.YouTube
}

type searchItem struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	UploaderName string `json:"uploaderName"`
	Views        int64  `json:"views"`
	Duration     int64  `json:"duration"`
	Thumbnail    string `json:"thumbnail"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

func (c *Client) Search(ctx context.Context, query string) ([]track.Candidate, error) {
	params := url.Values{"q": {query}, "filter": {"all"}}
	var resp searchResponse
	if err := c.getJSON(ctx, c.cfg.URL+"/search?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	items := resp.Items
	if c.cfg.SearchLimit > 0 && len(items) > c.cfg.SearchLimit {
		items = items[:c.cfg.SearchLimit]
	}
	out := lo.FilterMap(items, func(it searchItem, _ int) (track.Candidate, bool) {
		id, ok := VideoID(it.URL)
		if !ok {
			return track.Candidate{}, false
		}
		uploader := it.UploaderName
		if uploader == "" {
			uploader = defaultUploader
		}
		return track.Candidate{
			Source:     track.YouTube,
			ExternalID: id,
			Title:      it.Title,
			Artist:     uploader,
			PlayCount:  max(it.Views, 0),
			DurationMs: max(it.Duration, 0) * 1000,
			ArtworkURL: it.Thumbnail,
		}, true
	})
	c.logger.Debug("search done", "query", query, "raw", len(resp.Items), "kept", len(out))
	return out, nil
}

// VideoID extracts the id from a "/watch?v=" or "/shorts/" path. Channels
// and playlists yield false.
func VideoID(path string) (string, bool) {
	var id string
	switch {
	case strings.Contains(path, "/watch?v="):
		id = path[strings.LastIndex(path, "v=")+2:]
		id, _, _ = strings.Cut(id, "&")
	case strings.Contains(path, "/shorts/"):
		id = path[strings.LastIndex(path, "/shorts/")+len("/shorts/"):]
		id, _, _ = strings.Cut(id, "?")
	default:
		return "", false
	}
	return id, id != ""
}

type audioStream struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type streamsResponse struct {
	AudioStreams []audioStream `json:"audioStreams"`
}

// Resolve picks the M4A audio stream, or the first audio stream when no
// M4A rendition exists.
func (c *Client) Resolve(ctx context.Context, externalID, _ string) (string, error) {
	if externalID == "" || strings.ContainsAny(externalID, "/?&") {
		return "", fmt.Errorf("piped: video id %q: %w", externalID, apperrors.ErrInvalidInput)
	}
	var resp streamsResponse
	if err := c.getJSON(ctx, c.cfg.URL+"/streams/"+externalID, &resp); err != nil {
		return "", err
	}
	if len(resp.AudioStreams) == 0 {
		return "", fmt.Errorf("piped: no audio streams for %s: %w", externalID, apperrors.ErrTrackNotFound)
	}
	best, ok := lo.Find(resp.AudioStreams, func(s audioStream) bool { return s.Format == preferredFormat })
	if !ok {
		best = resp.AudioStreams[0]
	}
	if best.URL == "" {
		return "", fmt.Errorf("piped: empty stream url for %s: %w", externalID, apperrors.ErrTrackNotFound)
	}
	return best.URL, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("piped: building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("piped: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return provider.StatusError("piped", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("piped: decoding response: %w: %w", apperrors.ErrProviderUnavailable, err)
	}
	return nil
}
