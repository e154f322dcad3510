package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// HeaderEventType carries the event type so consumers can route without
// decoding the payload
const HeaderEventType = "event_type"

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

// Publish writes a pre-encoded event. Messages with the same key land on the
// same partition, so events of one order stay in sequence.
func (p *Producer) Publish(ctx context.Context, key, eventType string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(eventType)},
		},
		Time: time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
