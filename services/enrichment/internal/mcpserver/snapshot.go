package mcpserver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/cache"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/output"
)

// Snapshot serves the data set of the latest run, from the cache when it
// holds one and from the output files otherwise.
type Snapshot struct {
	cache  cache.Cache
	writer *output.Writer
	logger *zap.Logger
}

func NewSnapshot(c cache.Cache, writer *output.Writer, logger *zap.Logger) *Snapshot {
	return &Snapshot{cache: c, writer: writer, logger: logger}
}

func (s *Snapshot) LiveJobs(ctx context.Context) ([]models.JobRecord, error) {
	var jobs models.JobSet
	if s.cached(ctx, models.SnapshotLiveJobs, &jobs) {
		return jobs, nil
	}
	doc, err := output.ReadJobs(s.writer.Path(output.JobsFile))
	if err != nil {
		return nil, err
	}
	return doc.Jobs, nil
}

func (s *Snapshot) MarketIntelligence(ctx context.Context) (*models.MarketIntelligence, error) {
	var intel models.MarketIntelligence
	if s.cached(ctx, models.SnapshotMarketIntelligence, &intel) {
		return &intel, nil
	}
	return output.ReadMarketIntelligence(s.writer.Path(output.MarketIntelligenceFile))
}

func (s *Snapshot) Benchmarks(ctx context.Context) (models.BenchmarkSet, error) {
	var benchmarks models.BenchmarkSet
	if s.cached(ctx, models.SnapshotBenchmarks, &benchmarks) {
		return benchmarks, nil
	}
	doc, err := output.ReadBenchmarks(s.writer.Path(output.BenchmarksFile))
	if err != nil {
		return nil, err
	}
	return doc.Benchmarks, nil
}

func (s *Snapshot) cached(ctx context.Context, key string, value interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, value)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrNotFound) {
		s.logger.Warn("snapshot cache unavailable, reading files", zap.String("key", key), zap.Error(err))
	}
	return false
}
