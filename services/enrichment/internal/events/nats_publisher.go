package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/telemetry"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

var tracer = telemetry.GetTracer("pecollective/enrichment/events")

type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type NATSPublisher struct {
	conn    natsConn
	subject string
	logger  *zap.Logger
}

// NewNATSPublisher publishes on <subject>.new and <subject>.run over an open connection.
func NewNATSPublisher(conn *nats.Conn, subject string, logger *zap.Logger) *NATSPublisher {
	return newNATSPublisher(conn, subject, logger)
}

func newNATSPublisher(conn natsConn, subject string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

func (p *NATSPublisher) PublishNewJobs(ctx context.Context, records []models.JobRecord) error {
	_, span := tracer.Start(ctx, "NATSPublisher.PublishNewJobs")
	defer span.End()

	subject := p.subject + NewJobsSuffix
	span.SetAttributes(
		telemetry.String("nats.subject", subject),
		telemetry.Int("records", len(records)),
	)

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			telemetry.Fail(span, err)
			return errors.Internal("marshaling job record", err)
		}
		if err := p.conn.Publish(subject, data); err != nil {
			telemetry.Fail(span, err)
			p.logger.Error("failed to publish job record",
				zap.String("job_id", r.JobID),
				zap.Error(err))
			return errors.Unavailable("publishing to NATS", err)
		}
	}

	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		telemetry.Fail(span, err)
		return errors.Unavailable("flushing NATS connection", err)
	}

	p.logger.Debug("published new job records",
		zap.Int("count", len(records)),
		zap.String("subject", subject))
	return nil
}

func (p *NATSPublisher) PublishRunSummary(ctx context.Context, summary models.RunSummary) error {
	_, span := tracer.Start(ctx, "NATSPublisher.PublishRunSummary")
	defer span.End()

	data, err := json.Marshal(summary)
	if err != nil {
		telemetry.Fail(span, err)
		return errors.Internal("marshaling run summary", err)
	}

	subject := p.subject + RunSummarySuffix
	span.SetAttributes(
		telemetry.String("nats.subject", subject),
		telemetry.Int("message.size", len(data)),
	)

	if err := p.conn.Publish(subject, data); err != nil {
		telemetry.Fail(span, err)
		return errors.Unavailable("publishing to NATS", err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
