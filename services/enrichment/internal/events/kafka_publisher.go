package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/telemetry"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

const runSummaryKey = "run-summary"

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes every event to one topic. Job records are keyed by
// source URL so updates for the same posting land on the same partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	return NewKafkaPublisherWith(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, logger)
}

// NewKafkaPublisherWith wraps an existing writer.
func NewKafkaPublisherWith(w kafkaMessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logger}
}

func (k *KafkaPublisher) PublishNewJobs(ctx context.Context, records []models.JobRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "KafkaPublisher.PublishNewJobs")
	defer span.End()
	span.SetAttributes(telemetry.Int("records", len(records)))

	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			telemetry.Fail(span, err)
			return errors.Internal("marshaling job record", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(r.SourceURL),
			Value:   b,
			Headers: []kafka.Header{{Key: "type", Value: []byte(EventTypeJob)}},
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		telemetry.Fail(span, err)
		return errors.Unavailable("writing job records to kafka", err)
	}
	k.logger.Debug("wrote new job records to kafka", zap.Int("count", len(msgs)))
	return nil
}

func (k *KafkaPublisher) PublishRunSummary(ctx context.Context, summary models.RunSummary) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return errors.Internal("marshaling run summary", err)
	}
	msg := kafka.Message{
		Key:     []byte(runSummaryKey),
		Value:   b,
		Headers: []kafka.Header{{Key: "type", Value: []byte(EventTypeRunSummary)}},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Unavailable("writing run summary to kafka", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
