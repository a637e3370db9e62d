package repository

import (
	"context"

	"DexSignal/internal/domain/models"
	domrepo "DexSignal/internal/domain/repository"
	pkgkafka "DexSignal/pkg/kafka"
	"DexSignal/pkg/logger"
)

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ logger.Publisher       = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = NoopPublisher{}
	_ messageProducer        = (*pkgkafka.Producer)(nil)
)

type messageProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// EventTopics routes events to topics.
type EventTopics struct {
	Signals  string
	Outcomes string
}

// KafkaEventPublisher ships domain events keyed by pair address, so the
// events of one pair stay ordered within a partition. It also ships the
// aggregated error logs of the logger collector.
type KafkaEventPublisher struct {
	producer messageProducer
	topics   EventTopics
	metrics  domrepo.Metrics
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topics EventTopics, metrics domrepo.Metrics) *KafkaEventPublisher {
	return newEventPublisher(producer, topics, metrics)
}

func newEventPublisher(producer messageProducer, topics EventTopics, metrics domrepo.Metrics) *KafkaEventPublisher {
	if topics.Signals == "" {
		topics.Signals = "dexsignal.signals"
	}
	if topics.Outcomes == "" {
		topics.Outcomes = "dexsignal.outcomes"
	}
	return &KafkaEventPublisher{producer: producer, topics: topics, metrics: metrics}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.Event) error {
	topic := p.topicFor(ev.Type)
	if err := p.producer.Publish(ctx, topic, []byte(ev.PairAddress), ev); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("publish_" + string(ev.Type))
		}
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordMessageSent("kafka", topic)
	}
	return nil
}

// PublishMessage sends an arbitrary payload, used for the log topic.
func (p *KafkaEventPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

func (p *KafkaEventPublisher) topicFor(t models.EventType) string {
	switch t {
	case models.EventOutcomeRecorded, models.EventTargetSuperseded:
		return p.topics.Outcomes
	default:
		return p.topics.Signals
	}
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher drops every event. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
