package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/telemetry"
)

var tracer = telemetry.GetTracer("pecollective/enrichment/scheduler")

// RunFunc runs the pipeline once.
type RunFunc func(ctx context.Context) error

// Scheduler runs the pipeline immediately and then at a fixed interval
// until its context is cancelled.
type Scheduler struct {
	run      RunFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mutex    sync.Mutex
	isActive bool
	runs     int
	failures int
}

func NewScheduler(run RunFunc, interval, timeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		run:      run,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start blocks until ctx is done. A second Start while one is active returns at once.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.isActive {
		s.mutex.Unlock()
		return nil
	}
	s.isActive = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		s.isActive = false
		s.mutex.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx, "initial")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, "periodic")
		}
	}
}

// Stats returns how many runs were attempted and how many failed.
func (s *Scheduler) Stats() (runs, failures int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.runs, s.failures
}

func (s *Scheduler) tick(ctx context.Context, kind string) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	runCtx, span := tracer.Start(runCtx, "Scheduler.tick")
	defer span.End()
	span.SetAttributes(telemetry.String("kind", kind))

	err := s.run(runCtx)

	s.mutex.Lock()
	s.runs++
	if err != nil {
		s.failures++
	}
	s.mutex.Unlock()

	if err != nil {
		telemetry.Fail(span, err)
		s.logger.Error(kind+" run failed", zap.Error(err))
		return
	}
	s.logger.Debug(kind+" run finished")
}
