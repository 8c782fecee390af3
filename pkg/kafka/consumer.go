// Package kafka wraps segmentio/kafka-go for the analytics pipeline: a
// producer that writes JSON records with typed headers and a consumer
// group reader that feeds a MessageHandler.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/resilience"
)

// ErrMalformed marks a record that can never be processed. The consumer
// commits past it instead of retrying.
var ErrMalformed = errors.New("malformed record")

// Message is a consumed record.
type Message struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Time      time.Time
}

// MessageHandler processes one record. Errors other than ErrMalformed are
// retried; the offset is committed once the handler succeeds or gives up.
type MessageHandler func(ctx context.Context, msg Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader       reader
	handler      MessageHandler
	retry        resilience.RetryConfig
	fetchBackoff time.Duration
	staleAfter   time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	lastFetch time.Time
	lastErr   error
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable:    func(err error) bool { return !errors.Is(err, ErrMalformed) },
		},
		fetchBackoff: time.Second,
		staleAfter:   5 * time.Minute,
		logger:       slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.logger.Info("consumer stopped")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return c.reader.Close()
			}
			c.setErr(err)
			c.logger.Warn("fetching message failed", "error", err)
			select {
			case <-ctx.Done():
				return c.reader.Close()
			case <-time.After(c.fetchBackoff):
			}
			continue
		}
		c.fetched()
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	rec := fromKafka(msg)
	err := resilience.Retry(ctx, "kafka.handle", c.retry, func() error {
		return c.handler(ctx, rec)
	})
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return
	case errors.Is(err, ErrMalformed):
		log.Warn("skipping malformed record", "error", err)
	default:
		log.Error("handler gave up on record", "error", err)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		c.setErr(err)
		log.Error("committing offset failed", "error", err)
	}
}

func (c *Consumer) fetched() {
	c.mu.Lock()
	c.lastFetch = time.Now()
	c.lastErr = nil
	c.mu.Unlock()
}

func (c *Consumer) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// Health is degraded while broker calls fail or when nothing has been
// fetched for a while. An idle topic is not an outage, so it never reports
// down.
func (c *Consumer) Health(context.Context) health.ComponentHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.lastErr != nil:
		return health.ComponentHealth{Status: health.StatusDegraded, Message: c.lastErr.Error()}
	case c.lastFetch.IsZero():
		return health.ComponentHealth{Status: health.StatusUp, Message: "waiting for first record"}
	case time.Since(c.lastFetch) > c.staleAfter:
		return health.ComponentHealth{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("no records since %s", c.lastFetch.UTC().Format(time.RFC3339)),
		}
	}
	return health.ComponentHealth{Status: health.StatusUp}
}

func fromKafka(msg kafka.Message) Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Time:      msg.Time,
	}
}

// DecodeJSON unmarshals a record value into T. Failures wrap ErrMalformed.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return out, nil
}
