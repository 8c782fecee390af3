// Package track defines the candidate record shared by the providers, the
// ranking core and the presentation layers.
package track

import (
	"fmt"
	"strings"
)

// Source identifies the provider a candidate came from.
type Source string

const (
	SoundCloud Source = "soundcloud"
	YouTube    Source = "youtube"
)

// Sources lists every known provider in their canonical order.
var Sources = []Source{SoundCloud, YouTube}

// ParseSource accepts canonical names and the short codes used in callback
// payloads ("sc", "yt").
func ParseSource(s string) (Source, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "soundcloud", "sc":
		return SoundCloud, true
	case "youtube", "yt":
		return YouTube, true
	}
	return "", false
}

// Code returns the two-letter code used in compact identifiers.
func (s Source) Code() string {
	switch s {
	case SoundCloud:
		return "sc"
	case YouTube:
		return "yt"
	}
	return string(s)
}

// Key uniquely identifies a candidate across providers.
type Key struct {
	Source     Source
	ExternalID string
}

func (k Key) String() string {
	return k.Source.Code() + ":" + k.ExternalID
}

// Candidate is one discoverable audio track from one provider.
type Candidate struct {
	Source       Source  `json:"source"`
	ExternalID   string  `json:"external_id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	PlayCount    int64   `json:"play_count"`
	DurationMs   int64   `json:"duration_ms"`
	ArtworkURL   string  `json:"artwork_url,omitempty"`
	MediaLocator string  `json:"media_locator,omitempty"`
	Score        float64 `json:"score"`
	Scored       bool    `json:"scored"`
}

// Key returns the deduplication key of the candidate.
func (c Candidate) Key() Key {
	return Key{Source: c.Source, ExternalID: c.ExternalID}
}

// DisplayTitle strips the artist and file-extension noise providers often
// bake into titles, falling back to the raw title.
func (c Candidate) DisplayTitle() string {
	title := c.Title
	if c.Artist != "" {
		title = strings.ReplaceAll(title, c.Artist, "")
	}
	title = strings.ReplaceAll(title, ".mp3", "")
	title = strings.Trim(title, " -|:")
	if title == "" {
		return c.Title
	}
	return title
}

// Duration formats the track length as mm:ss.
func (c Candidate) Duration() string {
	secs := c.DurationMs / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// FormatPlays renders a play count as 1.5M / 300K / 42, or "" when unknown.
func FormatPlays(count int64) string {
	switch {
	case count <= 0:
		return ""
	case count >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(count)/1_000_000)
	case count >= 1_000:
		return fmt.Sprintf("%.0fK", float64(count)/1_000)
	default:
		return fmt.Sprintf("%d", count)
	}
}
