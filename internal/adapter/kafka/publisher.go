package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/olyamironova/escrow-book/internal/port"
	"github.com/segmentio/kafka-go"
)

var _ port.Publisher = (*Publisher)(nil)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes committed order events to a Kafka topic, keyed by order
// id so every event of one order lands on the same partition.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}
}

func (p *Publisher) Publish(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("kafka: encode event %d: %w", ev.Seq, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatUint(ev.OrderID, 10)),
			Value: value,
			Time:  ev.Timestamp,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(ev.Type)},
				{Key: "event-id", Value: []byte(ev.ID)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d events: %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
