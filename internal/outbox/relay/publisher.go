package relay

import (
	"context"
	"log/slog"

	"geoscore/internal/outbox/models"
	"geoscore/internal/platform/kafka"
)

// Publisher delivers a batch of outbox events. A nil error means every
// event in the batch was acknowledged.
type Publisher interface {
	Publish(ctx context.Context, events []*models.Event) error
}

// Producer is the subset of kafka.Producer the relay needs.
type Producer interface {
	Produce(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher keys records by aggregate id so events for one claim keep
// their order within a partition.
type KafkaPublisher struct {
	producer Producer
}

func NewKafkaPublisher(producer Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []*models.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		msgs = append(msgs, kafka.Message{
			Key:   evt.AggregateType + ":" + evt.AggregateID,
			Value: evt.Payload,
			Headers: map[string]string{
				"event_id":   evt.ID.String(),
				"event_type": evt.EventType,
			},
		})
	}
	return p.producer.Produce(ctx, msgs...)
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, events []*models.Event) error {
	for _, evt := range events {
		p.logger.InfoContext(ctx, "outbox event",
			"event_id", evt.ID.String(),
			"event_type", evt.EventType,
			"aggregate_type", evt.AggregateType,
			"aggregate_id", evt.AggregateID,
			"payload", string(evt.Payload),
		)
	}
	return nil
}
