package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

func newJobs() []models.JobRecord {
	return []models.JobRecord{
		{JobID: "a1", Title: "Prompt Engineer", SourceURL: "https://example.com/1"},
		{JobID: "b2", Title: "ML Engineer", SourceURL: "https://example.com/2"},
	}
}

type published struct {
	subject string
	data    []byte
}

type fakeNATS struct {
	msgs    []published
	fail    bool
	flushed int
	closed  bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	if f.fail {
		return stderrors.New("nats down")
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeNATS) FlushTimeout(time.Duration) error {
	f.flushed++
	return nil
}

func (f *fakeNATS) Close() { f.closed = true }

func TestNATSPublisher_PublishNewJobs(t *testing.T) {
	conn := &fakeNATS{}
	p := newNATSPublisher(conn, "jobs.enriched", zap.NewNop())

	require.NoError(t, p.PublishNewJobs(context.Background(), newJobs()))
	require.Len(t, conn.msgs, 2)
	assert.Equal(t, "jobs.enriched.new", conn.msgs[0].subject)
	assert.Equal(t, 1, conn.flushed)

	var got models.JobRecord
	require.NoError(t, json.Unmarshal(conn.msgs[1].data, &got))
	assert.Equal(t, "b2", got.JobID)

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}

func TestNATSPublisher_Failure(t *testing.T) {
	p := newNATSPublisher(&fakeNATS{fail: true}, "jobs.enriched", zap.NewNop())

	err := p.PublishNewJobs(context.Background(), newJobs())
	require.Error(t, err)
	assert.Equal(t, errors.ErrTypeUnavailable, errors.TypeOf(err))

	err = p.PublishRunSummary(context.Background(), models.RunSummary{RunID: "r"})
	require.Error(t, err)
}

func TestNATSPublisher_PublishRunSummary(t *testing.T) {
	conn := &fakeNATS{}
	p := newNATSPublisher(conn, "jobs.enriched", zap.NewNop())

	require.NoError(t, p.PublishRunSummary(context.Background(), models.RunSummary{RunID: "r1", Added: 3}))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "jobs.enriched.run", conn.msgs[0].subject)
	assert.JSONEq(t, `{"run_id":"r1","started_at":"","date":"","source":"","rows_read":0,"rows_skipped":0,
		"duplicates_dropped":0,"url_conflicts":0,"records":0,"added":3,"master_duplicates":0,"unkeyed":0,
		"master_total":0,"stale_pages":0}`, string(conn.msgs[0].data))
}

// fakeKafkaWriter implements kafkaMessageWriter for tests
type fakeKafkaWriter struct {
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return stderrors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_PublishNewJobs(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kp := NewKafkaPublisherWith(fk, zap.NewNop())

	require.NoError(t, kp.PublishNewJobs(context.Background(), newJobs()))
	require.Len(t, fk.msgs, 2)
	assert.Equal(t, "https://example.com/1", string(fk.msgs[0].Key))
	assert.Equal(t, EventTypeJob, string(fk.msgs[0].Headers[0].Value))

	require.NoError(t, kp.PublishNewJobs(context.Background(), nil))
	assert.Len(t, fk.msgs, 2, "empty batches write nothing")
}

func TestKafkaPublisher_RunSummaryAndFailure(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kp := NewKafkaPublisherWith(fk, zap.NewNop())

	require.NoError(t, kp.PublishRunSummary(context.Background(), models.RunSummary{RunID: "r1"}))
	require.Len(t, fk.msgs, 1)
	assert.Equal(t, runSummaryKey, string(fk.msgs[0].Key))

	fk.fail = true
	assert.Error(t, kp.PublishNewJobs(context.Background(), newJobs()))
	assert.Error(t, kp.PublishRunSummary(context.Background(), models.RunSummary{}))

	require.NoError(t, kp.Close())
	assert.True(t, fk.closed)
}

func TestMultiPublisher_ContinuesPastFailures(t *testing.T) {
	failing := newNATSPublisher(&fakeNATS{fail: true}, "jobs.enriched", zap.NewNop())
	fk := &fakeKafkaWriter{}
	m := MultiPublisher(failing, NewKafkaPublisherWith(fk, zap.NewNop()))

	err := m.PublishNewJobs(context.Background(), newJobs())
	require.Error(t, err)
	assert.Len(t, fk.msgs, 2, "kafka still receives the batch")

	require.NoError(t, MultiPublisher().PublishRunSummary(context.Background(), models.RunSummary{}))
	require.NoError(t, m.Close())
}

type fakeSubscriber struct {
	subject string
	queue   string
	handler nats.MsgHandler
	err     error
}

func (f *fakeSubscriber) QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subject, f.queue, f.handler = subject, queue, cb
	return &nats.Subscription{}, nil
}

func TestTrigger_RunsPipelineOnMessage(t *testing.T) {
	sub := &fakeSubscriber{}
	runs := 0
	trigger := newTrigger(zap.NewNop(), sub, "jobs.enrich.trigger", time.Second, func(ctx context.Context) error {
		runs++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	lc := fxtest.NewLifecycle(t)
	require.NoError(t, trigger.RegisterSubscriptions(lc))
	assert.Equal(t, "jobs.enrich.trigger", sub.subject)
	assert.Equal(t, triggerQueue, sub.queue)

	sub.handler(&nats.Msg{Subject: "jobs.enrich.trigger"})
	assert.Equal(t, 1, runs)

	lc.RequireStart().RequireStop()
}

func TestTrigger_ZeroTimeoutHasNoDeadline(t *testing.T) {
	sub := &fakeSubscriber{}
	var runErr error
	trigger := newTrigger(zap.NewNop(), sub, "jobs.enrich.trigger", 0, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		runErr = ctx.Err()
		return runErr
	})

	require.NoError(t, trigger.RegisterSubscriptions(fxtest.NewLifecycle(t)))
	sub.handler(&nats.Msg{Subject: "jobs.enrich.trigger"})
	assert.NoError(t, runErr)
}

func TestTrigger_FailedRunIsLogged(t *testing.T) {
	sub := &fakeSubscriber{}
	trigger := newTrigger(zap.NewNop(), sub, "jobs.enrich.trigger", time.Second, func(context.Context) error {
		return stderrors.New("no input")
	})

	require.NoError(t, trigger.RegisterSubscriptions(fxtest.NewLifecycle(t)))
	assert.NotPanics(t, func() { sub.handler(&nats.Msg{Subject: "jobs.enrich.trigger"}) })
}

func TestTrigger_SubscribeError(t *testing.T) {
	sub := &fakeSubscriber{err: stderrors.New("not connected")}
	trigger := newTrigger(zap.NewNop(), sub, "jobs.enrich.trigger", time.Second, nil)

	err := trigger.RegisterSubscriptions(fxtest.NewLifecycle(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe to jobs.enrich.trigger")
}
