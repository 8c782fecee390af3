package bot

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
)

// Payload prefixes carried in inline result ids and callback data.
const (
	ActionDownload = "dl" // chosen inline result
	ActionFetch    = "f"  // "retry" button under an inline result
	ActionPlay     = "p"  // track picked from a private search reply
)

// Payload is an action bound to one track, encoded as "<action>:<code>:<id>".
type Payload struct {
	Action string
	Key    track.Key
}

func NewPayload(action string, key track.Key) Payload {
	return Payload{Action: action, Key: key}
}

func (p Payload) String() string {
	return p.Action + ":" + p.Key.String()
}

// ParsePayload decodes callback data or an inline result id. The external
// id may itself contain colons.
func ParsePayload(data string) (Payload, error) {
	action, rest, ok := strings.Cut(data, ":")
	if !ok {
		return Payload{}, fmt.Errorf("payload %q: missing source: %w", data, apperrors.ErrInvalidInput)
	}
	switch action {
	case ActionDownload, ActionFetch, ActionPlay:
	default:
		return Payload{}, fmt.Errorf("payload %q: unknown action: %w", data, apperrors.ErrInvalidInput)
	}
	code, id, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return Payload{}, fmt.Errorf("payload %q: missing id: %w", data, apperrors.ErrInvalidInput)
	}
	src, ok := track.ParseSource(code)
	if !ok {
		return Payload{}, fmt.Errorf("payload %q: unknown source: %w", data, apperrors.ErrInvalidInput)
	}
	return Payload{Action: action, Key: track.Key{Source: src, ExternalID: id}}, nil
}
