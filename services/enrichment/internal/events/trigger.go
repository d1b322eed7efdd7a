package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/telemetry"
)

const triggerQueue = "enrichment-service"

// RunFunc runs the pipeline once.
type RunFunc func(ctx context.Context) error

type queueSubscriber interface {
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type triggerReply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Trigger runs the pipeline whenever a message arrives on its subject. Members
// of the queue group share the messages, so one request runs one pipeline.
type Trigger struct {
	logger  *zap.Logger
	nc      queueSubscriber
	subject string
	timeout time.Duration
	run     RunFunc
	sub     *nats.Subscription
}

func NewTrigger(logger *zap.Logger, nc *nats.Conn, subject string, timeout time.Duration, run RunFunc) *Trigger {
	return newTrigger(logger, nc, subject, timeout, run)
}

func newTrigger(logger *zap.Logger, nc queueSubscriber, subject string, timeout time.Duration, run RunFunc) *Trigger {
	return &Trigger{
		logger:  logger,
		nc:      nc,
		subject: subject,
		timeout: timeout,
		run:     run,
	}
}

func (t *Trigger) RegisterSubscriptions(lc fx.Lifecycle) error {
	sub, err := t.nc.QueueSubscribe(t.subject, triggerQueue, t.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", t.subject, err)
	}

	t.sub = sub
	t.logger.Info("registered run trigger", zap.String("subject", t.subject))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if t.sub.IsValid() {
				return t.sub.Unsubscribe()
			}
			return nil
		},
	})

	return nil
}

// handle runs the pipeline for one message. A zero timeout means no deadline.
func (t *Trigger) handle(msg *nats.Msg) {
	ctx := context.Background()
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "Trigger.handle")
	defer span.End()
	span.SetAttributes(telemetry.String("nats.subject", msg.Subject))

	reply := triggerReply{Status: "ok"}
	if err := t.run(ctx); err != nil {
		telemetry.Fail(span, err)
		t.logger.Error("triggered run failed",
			zap.Error(err),
			zap.String("subject", msg.Subject),
		)
		reply = triggerReply{Status: "error", Error: err.Error()}
	} else {
		t.logger.Info("triggered run completed", zap.String("subject", msg.Subject))
	}

	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		t.logger.Warn("failed to answer run trigger", zap.Error(err))
	}
}
