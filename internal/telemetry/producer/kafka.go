package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ihire-proctoring/backend/internal/telemetry"
)

// HeaderEventType carries Event.EventType so consumers can route without decoding the value.
const HeaderEventType = "event-type"

// Config configures the Kafka producer.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// KafkaProducer writes lifecycle events to one topic, keyed by session.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer returns (nil, nil) when brokers or topic are unset so Kafka stays optional.
func NewKafkaProducer(cfg Config) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, nil
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}}, nil
}

// Encode builds the Kafka message for event. The key is mockID/sessionID, so one session's
// events land on one partition in order.
func Encode(event *telemetry.Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", event.EventType, err)
	}
	return kafka.Message{
		Key:     []byte(event.MockID + "/" + event.SessionID),
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(event.EventType)}},
		Time:    event.CreatedAt,
	}, nil
}

// Decode parses a message written by Encode.
func Decode(msg kafka.Message) (*telemetry.Event, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New("decode event: empty message")
	}
	var event telemetry.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	return &event, nil
}

// Emit writes event to the topic. The caller bounds the write with ctx.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || event == nil {
		return nil
	}
	msg, err := Encode(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", event.EventType, err)
	}
	return nil
}

// Close flushes pending writes. It is safe on a nil producer.
func (p *KafkaProducer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
