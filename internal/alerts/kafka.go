// Package alerts mirrors price alerts and volume spikes to Kafka so that
// consumers outside the realtime channel can react to them.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/observability"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "token-alerts"

// Config holds Kafka connection configuration.
type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes alert events to a Kafka topic, keyed by token address
// so that events for one token stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
	log    logrus.FieldLogger
}

// NewPublisher creates an asynchronous Kafka publisher. Write failures are
// reported through the completion callback and never block the caller.
func NewPublisher(cfg Config, log logrus.FieldLogger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}

	p := &Publisher{
		now: time.Now,
		log: logger.Component(log, "alerts").WithField("topic", cfg.Topic),
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion:   p.completed,
	}

	p.log.WithField("brokers", cfg.Brokers).Debug("kafka alert publisher initialized")
	return p, nil
}

func newPublisherWithWriter(w messageWriter) *Publisher {
	return &Publisher{writer: w, now: time.Now, log: logger.Component(nil, "alerts")}
}

// Publish encodes ev and hands it to the writer. Only price:alert and
// volume:spike events are accepted.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	msg, err := p.encode(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}

func (p *Publisher) encode(ev domain.Event) (kafka.Message, error) {
	var key string
	switch data := ev.Data.(type) {
	case domain.PriceAlert:
		key = data.Token.Key()
	case domain.VolumeSpike:
		key = data.Token.Key()
	default:
		return kafka.Message{}, fmt.Errorf("unsupported alert event %q", ev.Name)
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", ev.Name, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Name)},
		},
		Time: p.now(),
	}, nil
}

func (p *Publisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	observability.RecordAlertPublishError()
	p.log.WithError(err).WithField("messages", len(msgs)).Warn("failed to write alerts")
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
