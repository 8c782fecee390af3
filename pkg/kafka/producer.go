package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

// Header names set on every produced record.
const (
	HeaderContentType = "content-type"
	HeaderProducedAt  = "produced-at"
)

// Event is the unit of data published. Key picks the partition, Value is
// encoded as JSON and Headers travel as record headers.
type Event struct {
	Key     string
	Value   any
	Headers map[string]string
}

// Publisher is implemented by Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []Event) error
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON events to one topic.
type Producer struct {
	writer writer
	now    func() time.Time
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic)
}

func newProducer(w writer, topic string) *Producer {
	return &Producer{
		writer: w,
		now:    time.Now,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so one bad value
// fails the whole batch without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	at := p.now().UTC().Format(time.RFC3339Nano)
	msgs := make([]kafka.Message, len(events))
	for i, e := range events {
		msg, err := toKafka(e)
		if err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
		msg.Headers = append(msg.Headers,
			kafka.Header{Key: HeaderContentType, Value: []byte("application/json")},
			kafka.Header{Key: HeaderProducedAt, Value: []byte(at)},
		)
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publishing batch failed", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing %d records: %w", len(msgs), err)
	}
	p.logger.Debug("batch published", "count", len(msgs))
	return nil
}

func toKafka(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding event value: %w", err)
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: value}
	for k, v := range event.Headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg, nil
}

// Close flushes pending writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
