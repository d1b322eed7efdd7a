// Package events announces new job records and run summaries to downstream
// consumers, and listens for run requests.
package events

import (
	"context"
	"errors"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

const (
	NewJobsSuffix    = ".new"
	RunSummarySuffix = ".run"

	EventTypeJob        = "job.added"
	EventTypeRunSummary = "run.completed"
)

type Publisher interface {
	PublishNewJobs(ctx context.Context, records []models.JobRecord) error
	PublishRunSummary(ctx context.Context, summary models.RunSummary) error
	Close() error
}

// multiPublisher hands every event to each publisher in turn. A failing
// publisher does not stop the others; their errors are joined.
type multiPublisher struct {
	pubs []Publisher
}

// MultiPublisher combines publishers. With none it returns a publisher that drops everything.
func MultiPublisher(pubs ...Publisher) Publisher {
	return &multiPublisher{pubs: pubs}
}

func (m *multiPublisher) PublishNewJobs(ctx context.Context, records []models.JobRecord) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.PublishNewJobs(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiPublisher) PublishRunSummary(ctx context.Context, summary models.RunSummary) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.PublishRunSummary(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiPublisher) Close() error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
