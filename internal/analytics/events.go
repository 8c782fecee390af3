package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
)

type EventType string

const (
	EventSearch   EventType = "search"
	EventDelivery EventType = "delivery"
)

// HeaderType carries the EventType on every published record so consumers
// can decode without sniffing the payload.
const HeaderType = "type"

// Event is anything the collector can publish.
type Event interface {
	EventType() EventType
}

type SearchEvent struct {
	Query      string    `json:"query"`
	Mode       string    `json:"mode"`
	Origin     string    `json:"origin"`
	Variants   []string  `json:"variants"`
	Considered int       `json:"considered"`
	Banned     int       `json:"banned"`
	Returned   int       `json:"returned"`
	FailedCall int       `json:"failed_calls"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (SearchEvent) EventType() EventType { return EventSearch }

// Delivery methods, in the order the bot tries them.
const (
	MethodCached = "cached"
	MethodDirect = "direct"
	MethodRelay  = "relay"
	MethodLink   = "link"
)

type DeliveryEvent struct {
	Source     track.Source `json:"source"`
	ExternalID string       `json:"external_id"`
	Method     string       `json:"method"`
	OK         bool         `json:"ok"`
	LatencyMs  int64        `json:"latency_ms"`
	Timestamp  time.Time    `json:"timestamp"`
}

func (DeliveryEvent) EventType() EventType { return EventDelivery }
