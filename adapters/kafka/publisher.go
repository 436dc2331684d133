// Package kafka publishes domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Skryldev/image-host/config"
	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

var (
	_ core.EventPublisher = (*Publisher)(nil)
	_ core.EventPublisher = NopPublisher{}
)

const (
	batchTimeout   = 10 * time.Millisecond // kafka-go waits 1s by default
	publishTimeout = 2 * time.Second       // per request, even with brokers down
	ioTimeout      = 10 * time.Second
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes JSON encoded events keyed by image id, so every event for
// one image lands on the same partition in order.
type Publisher struct {
	writer MessageWriter
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// New returns a Kafka backed publisher, or a NopPublisher when no brokers
// are configured.
func New(cfg config.KafkaConfig) core.EventPublisher {
	if len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}
	return NewPublisher(newWriter(cfg))
}

func newWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           batchTimeout,
		WriteTimeout:           ioTimeout,
		ReadTimeout:            ioTimeout,
		AllowAutoTopicCreation: true,
	}
}

func (p *Publisher) Publish(ctx context.Context, e core.Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, "kafka.publish", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(sendCtx, kafka.Message{
		Key:   []byte(strconv.FormatInt(e.ImageID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return apperrors.Transient("kafka.publish", err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, core.Event) error { return nil }
func (NopPublisher) Close() error                              { return nil }
