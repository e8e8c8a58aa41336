package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a [KafkaPublisher].
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher streams entries to a Kafka topic keyed by session ID, so
// all entries of one session land on the same partition in order.
type KafkaPublisher struct {
	w     messageWriter
	topic string
}

var _ Writer = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher. Brokers and Topic are required.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("journal kafka: no brokers")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("journal kafka: empty topic")
	}
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{Dial: dialer.DialFunc},
	}
	return &KafkaPublisher{w: w, topic: cfg.Topic}, nil
}

// Write implements [Writer].
func (p *KafkaPublisher) Write(ctx context.Context, e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal kafka: marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.SessionID),
		Value: value,
		Time:  e.Time,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
			{Key: "entry_id", Value: []byte(strconv.FormatInt(e.ID, 10))},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("journal kafka: publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
