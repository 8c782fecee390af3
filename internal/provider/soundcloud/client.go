// Package soundcloud searches the SoundCloud catalogue through its public
// web API and resolves progressive MP3 stream URLs.
package soundcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
)

const unknownArtist = "Unknown"

type Client struct {
	http   *http.Client
	cfg    config.SoundCloudConfig
	keys   *KeyManager
	logger *slog.Logger
}

// New builds a client. A nil httpClient uses provider.DefaultHTTPClient.
func New(cfg config.SoundCloudConfig, keys *KeyManager, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = provider.DefaultHTTPClient
	}
	if keys == nil {
		keys = NewKeyManager(httpClient, cfg.DiscoverURL, cfg.FallbackClientID)
	}
	return &Client{
		http:   httpClient,
		cfg:    cfg,
		keys:   keys,
		logger: slog.Default().With("component", "soundcloud"),
	}
}

func (c *Client) Source() track.Source {
	return track.SoundCloud
}

type transcoding struct {
	URL    string `json:"url"`
	Format struct {
		Protocol string `json:"protocol"`
	} `json:"format"`
}

type apiTrack struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Streamable    bool   `json:"streamable"`
	PlaybackCount int64  `json:"playback_count"`
	Duration      int64  `json:"duration"`
	ArtworkURL    string `json:"artwork_url"`
	User          struct {
		Username string `json:"username"`
	} `json:"user"`
	Media struct {
		Transcodings []transcoding `json:"transcodings"`
	} `json:"media"`
}

func (t apiTrack) progressiveURL() string {
	for _, tc := range t.Media.Transcodings {
		if tc.Format.Protocol == "progressive" && tc.URL != "" {
			return tc.URL
		}
	}
	return ""
}

type searchResponse struct {
	Collection []apiTrack `json:"collection"`
}

// Search returns streamable tracks that have a progressive transcoding.
func (c *Client) Search(ctx context.Context, query string) ([]track.Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("client_id", c.keys.ClientID())
	params.Set("limit", strconv.Itoa(c.cfg.SearchLimit))
	if c.cfg.AppVersion != "" {
		params.Set("app_version", c.cfg.AppVersion)
	}

	var resp searchResponse
	if err := c.getJSON(ctx, c.cfg.APIURL+"/search/tracks?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]track.Candidate, 0, len(resp.Collection))
	for _, item := range resp.Collection {
		if cand, ok := c.toCandidate(item); ok {
			out = append(out, cand)
		}
	}
	c.logger.Debug("search done", "query", query, "raw", len(resp.Collection), "kept", len(out))
	return out, nil
}

func (c *Client) toCandidate(item apiTrack) (track.Candidate, bool) {
	if !item.Streamable || !c.validTitle(item.Title) {
		return track.Candidate{}, false
	}
	locator := item.progressiveURL()
	if locator == "" {
		return track.Candidate{}, false
	}
	artist := item.User.Username
	if artist == "" {
		artist = unknownArtist
	}
	return track.Candidate{
		Source:       track.SoundCloud,
		ExternalID:   strconv.FormatInt(item.ID, 10),
		Title:        item.Title,
		Artist:       artist,
		PlayCount:    item.PlaybackCount,
		DurationMs:   item.Duration,
		ArtworkURL:   item.ArtworkURL,
		MediaLocator: locator,
	}, true
}

func (c *Client) validTitle(title string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	if c.cfg.MaxTitleLength > 0 && utf8.RuneCountInString(title) > c.cfg.MaxTitleLength {
		return false
	}
	return strings.IndexFunc(title, unicode.IsControl) < 0
}

// Resolve turns a track into a direct stream URL. locator is the
// progressive transcoding URL captured at search time; without it the
// track is looked up first.
func (c *Client) Resolve(ctx context.Context, externalID, locator string) (string, error) {
	if locator == "" {
		if _, err := strconv.ParseInt(externalID, 10, 64); err != nil {
			return "", fmt.Errorf("soundcloud: track id %q: %w", externalID, apperrors.ErrInvalidInput)
		}
		var t apiTrack
		q := url.Values{"client_id": {c.keys.ClientID()}}
		if err := c.getJSON(ctx, c.cfg.APIURL+"/tracks/"+externalID+"?"+q.Encode(), &t); err != nil {
			return "", err
		}
		locator = t.progressiveURL()
		if locator == "" {
			return "", fmt.Errorf("soundcloud: track %s has no progressive stream: %w", externalID, apperrors.ErrTrackNotFound)
		}
	}

	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("soundcloud: locator: %w", apperrors.ErrInvalidInput)
	}
	q := u.Query()
	q.Set("client_id", c.keys.ClientID())
	u.RawQuery = q.Encode()

	var stream struct {
		URL string `json:"url"`
	}
	if err := c.getJSON(ctx, u.String(), &stream); err != nil {
		return "", err
	}
	if stream.URL == "" {
		return "", fmt.Errorf("soundcloud: empty stream url for %s: %w", externalID, apperrors.ErrTrackNotFound)
	}
	return stream.URL, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("soundcloud: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("soundcloud: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.keys.RefreshAsync()
	}
	if resp.StatusCode != http.StatusOK {
		return provider.StatusError("soundcloud", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("soundcloud: decoding response: %w: %w", apperrors.ErrProviderUnavailable, err)
	}
	return nil
}
