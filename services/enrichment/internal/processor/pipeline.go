package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/romelikethecity/pecollective/common/cache"
	"github.com/romelikethecity/pecollective/common/telemetry"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/aggregator"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/enricher"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/events"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/ingest"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/master"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/metrics"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/normalizer"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/output"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/recommender"
)

// AnalyticsSink mirrors run results into an analytics store.
type AnalyticsSink interface {
	MirrorRecords(ctx context.Context, records []models.JobRecord) (int, error)
	RecordTrend(ctx context.Context, point models.TrendPoint) error
	RecordRun(ctx context.Context, summary models.RunSummary) error
}

// ArtifactUploader copies output files to remote storage.
type ArtifactUploader interface {
	Upload(ctx context.Context, date time.Time, files []string) ([]string, error)
}

type Options struct {
	DataDir        string
	RawGlob        string
	SimilarLimit   int
	CacheTTL       time.Duration
	PushgatewayURL string
}

// Params are the pipeline's collaborators. The sinks are optional; a nil
// sink is skipped.
type Params struct {
	fx.In

	Options    Options
	Logger     *zap.Logger
	Enricher   *enricher.Enricher
	Aggregator *aggregator.Aggregator
	Store      master.Store
	Writer     *output.Writer

	Publisher events.Publisher  `optional:"true"`
	Analytics AnalyticsSink     `optional:"true"`
	Uploader  ArtifactUploader  `optional:"true"`
	Cache     cache.Cache       `optional:"true"`
	Metrics   *metrics.Registry `optional:"true"`
	Clock     func() time.Time  `optional:"true"`
}

// RunReport is the outcome of one run.
type RunReport struct {
	models.RunSummary
	Outputs    []string
	Uploaded   []string
	Stale      []models.StalePage
	NewRecords []models.JobRecord
}

// Pipeline turns the latest raw batch into the published data set.
type Pipeline struct {
	mu sync.Mutex

	opts       Options
	logger     *zap.Logger
	tracer     trace.Tracer
	enricher   *enricher.Enricher
	aggregator *aggregator.Aggregator
	store      master.Store
	writer     *output.Writer
	publisher  events.Publisher
	analytics  AnalyticsSink
	uploader   ArtifactUploader
	cache      cache.Cache
	metrics    *metrics.Registry
	now        func() time.Time
}

func NewPipeline(p Params) *Pipeline {
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		opts:       p.Options,
		logger:     p.Logger,
		tracer:     telemetry.GetTracer("pecollective/enrichment/processor"),
		enricher:   p.Enricher,
		aggregator: p.Aggregator,
		store:      p.Store,
		writer:     p.Writer,
		publisher:  p.Publisher,
		analytics:  p.Analytics,
		uploader:   p.Uploader,
		cache:      p.Cache,
		metrics:    p.Metrics,
		now:        now,
	}
}

type batch struct {
	source    string
	rowsRead  int
	skipped   int
	dropped   int
	conflicts int
	records   []models.JobRecord
}

// Run executes one pipeline pass. Runs never overlap. The master store is
// updated before any sink runs, so a sink failure leaves the store and the
// output files consistent; the failure is still reported.
func (p *Pipeline) Run(ctx context.Context) (report *RunReport, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.now()
	ctx, span := p.tracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	defer func() {
		if err != nil {
			telemetry.Fail(span, err)
		}
		p.observe(ctx, report, started, err)
	}()

	date := started.Format(time.DateOnly)
	report = &RunReport{RunSummary: models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: started.UTC().Format(time.RFC3339),
		Date:      date,
	}}
	logger := p.logger.With(zap.String("run_id", report.RunID))

	b, err := p.load(ctx, logger)
	if err != nil {
		return nil, err
	}
	report.Source = b.source
	report.RowsRead = b.rowsRead
	report.RowsSkipped = b.skipped
	report.DuplicatesDropped = b.dropped
	report.URLConflicts = b.conflicts
	report.Records = len(b.records)

	intel := p.aggregator.Aggregate(b.records, date)
	benchmarks := p.aggregator.Benchmarks(b.records)

	slugs := recommender.JobSlugs(b.records)
	report.Stale, err = p.stalePages(b.records, slugs)
	if err != nil {
		return nil, err
	}
	report.StalePages = len(report.Stale)

	report.Outputs, err = p.writeOutputs(ctx, b.records, intel, benchmarks, report.Stale, slugs, started)
	if err != nil {
		return nil, err
	}

	point := models.TrendPoint{Date: date, JobCount: len(b.records)}
	result, err := p.persist(ctx, b.records, point, started)
	if err != nil {
		return nil, err
	}
	report.NewRecords = result.Added
	report.Added = len(result.Added)
	report.MasterDuplicates = result.Duplicates
	report.Unkeyed = result.Unkeyed
	report.MasterTotal = result.Total

	p.snapshot(ctx, b.records, intel, benchmarks, logger)

	if err := p.fanOut(ctx, report, b.records, point, started); err != nil {
		logger.Error("sink failed", zap.Error(err))
		return report, err
	}

	logger.Info("run completed",
		zap.String("source", report.Source),
		zap.Int("records", report.Records),
		zap.Int("added", report.Added),
		zap.Int("master_total", report.MasterTotal),
		zap.Int("stale_pages", report.StalePages),
		zap.Duration("elapsed", p.now().Sub(started)))
	return report, nil
}

// load reads the newest raw batch. Without one, the previous jobs.json is
// reused as an already enriched batch; without either the run cannot start.
func (p *Pipeline) load(ctx context.Context, logger *zap.Logger) (*batch, error) {
	_, span := p.tracer.Start(ctx, "Pipeline.load")
	defer span.End()

	path, err := ingest.LatestFile(p.opts.DataDir, p.opts.RawGlob)
	if errors.IsNotFound(err) {
		jobsPath := p.writer.Path(output.JobsFile)
		doc, jerr := output.ReadJobs(jobsPath)
		if errors.IsNotFound(jerr) {
			return nil, errors.NotFound(
				fmt.Sprintf("no raw batch matching %s and no %s in %s", p.opts.RawGlob, output.JobsFile, p.opts.DataDir), err)
		}
		if jerr != nil {
			return nil, jerr
		}
		logger.Warn("no raw batch found, reusing previous output", zap.String("path", jobsPath))
		span.SetAttributes(telemetry.String("source", jobsPath))
		return &batch{source: jobsPath, rowsRead: len(doc.Jobs), records: doc.Jobs}, nil
	}
	if err != nil {
		return nil, err
	}

	raws, err := ingest.ReadFile(path)
	if err != nil {
		return nil, err
	}
	logger.Info("raw batch loaded", zap.String("path", path), zap.Int("rows", len(raws)))

	b := &batch{source: path, rowsRead: len(raws)}
	for _, raw := range raws {
		if url, conflict := normalizer.ResolveSourceURL(raw); conflict {
			b.conflicts++
			logger.Warn("direct and listing urls differ, using direct",
				zap.String("source_url", url),
				zap.String("job_url", raw.JobURL))
		}
	}

	kept, dropped := ingest.Dedup(raws)
	b.dropped = dropped
	b.records, b.skipped = p.enricher.EnrichAll(kept)

	span.SetAttributes(
		telemetry.String("source", filepath.Base(path)),
		telemetry.Int("rows", len(raws)),
		telemetry.Int("records", len(b.records)),
	)
	logger.Info("batch enriched",
		zap.Int("records", len(b.records)),
		zap.Int("skipped", b.skipped),
		zap.Int("duplicates_dropped", dropped))
	return b, nil
}

// stalePages compares the previous slug index with the current slugs and
// suggests live jobs for every page that went away.
func (p *Pipeline) stalePages(records []models.JobRecord, slugs []string) ([]models.StalePage, error) {
	previous, err := output.ReadSlugs(p.writer.Path(output.SlugIndexFile))
	if err != nil {
		return nil, err
	}

	stale := recommender.StaleSlugs(previous, slugs)
	pages := make([]models.StalePage, 0, len(stale))
	for _, slug := range stale {
		page := models.StalePage{
			Slug:    slug,
			Similar: recommender.Recommend(slug, records, p.opts.SimilarLimit),
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (p *Pipeline) writeOutputs(
	ctx context.Context,
	records []models.JobRecord,
	intel models.MarketIntelligence,
	benchmarks []models.SalaryBenchmark,
	stale []models.StalePage,
	slugs []string,
	now time.Time,
) ([]string, error) {
	_, span := p.tracer.Start(ctx, "Pipeline.writeOutputs")
	defer span.End()

	writes := []func() (string, error){
		func() (string, error) { return p.writer.WriteJobs(records, now) },
		func() (string, error) { return p.writer.WriteCSV(records, now) },
		func() (string, error) { return p.writer.WriteMarketIntelligence(intel) },
		func() (string, error) { return p.writer.WriteBenchmarks(benchmarks, now) },
		func() (string, error) { return p.writer.WriteStale(stale, now) },
		func() (string, error) { return p.writer.WriteSlugs(slugs) },
	}

	paths := make([]string, 0, len(writes))
	for _, write := range writes {
		path, err := write()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *Pipeline) persist(ctx context.Context, records []models.JobRecord, point models.TrendPoint, now time.Time) (*master.MergeResult, error) {
	ctx, span := p.tracer.Start(ctx, "Pipeline.persist")
	defer span.End()

	result, err := p.store.Merge(ctx, records, now)
	if err != nil {
		return nil, errors.Internal("merging into master store", err)
	}
	if err := p.store.UpsertTrend(ctx, point); err != nil {
		return nil, errors.Internal("recording job count", err)
	}

	span.SetAttributes(
		telemetry.Int("added", len(result.Added)),
		telemetry.Int("master_total", result.Total),
	)
	return result, nil
}

// snapshot leaves the latest data set in the cache for the query surface.
// Cache failures only cost freshness there, so they are logged.
func (p *Pipeline) snapshot(ctx context.Context, records []models.JobRecord, intel models.MarketIntelligence, benchmarks []models.SalaryBenchmark, logger *zap.Logger) {
	if p.cache == nil {
		return
	}
	entries := map[string]interface{}{
		models.SnapshotLiveJobs:           models.JobSet(records),
		models.SnapshotMarketIntelligence: intel,
		models.SnapshotBenchmarks:         models.BenchmarkSet(benchmarks),
	}
	for key, value := range entries {
		if err := p.cache.Set(ctx, key, value, p.opts.CacheTTL); err != nil {
			logger.Warn("failed to cache snapshot", zap.String("key", key), zap.Error(err))
		}
	}
}

// fanOut hands the run to every configured sink concurrently.
func (p *Pipeline) fanOut(ctx context.Context, report *RunReport, records []models.JobRecord, point models.TrendPoint, now time.Time) error {
	ctx, span := p.tracer.Start(ctx, "Pipeline.fanOut")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)

	if p.publisher != nil {
		g.Go(func() error {
			if err := p.publisher.PublishNewJobs(gctx, report.NewRecords); err != nil {
				return fmt.Errorf("publish new jobs: %w", err)
			}
			if err := p.publisher.PublishRunSummary(gctx, report.RunSummary); err != nil {
				return fmt.Errorf("publish run summary: %w", err)
			}
			return nil
		})
	}

	if p.analytics != nil {
		g.Go(func() error {
			if _, err := p.analytics.MirrorRecords(gctx, records); err != nil {
				return err
			}
			if err := p.analytics.RecordTrend(gctx, point); err != nil {
				return err
			}
			return p.analytics.RecordRun(gctx, report.RunSummary)
		})
	}

	var uploaded []string
	if p.uploader != nil {
		g.Go(func() error {
			uris, err := p.uploader.Upload(gctx, now, report.Outputs)
			uploaded = uris
			if err != nil {
				return fmt.Errorf("upload artifacts: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	report.Uploaded = uploaded
	if err != nil {
		telemetry.Fail(span, err)
		return errors.Unavailable("delivering run results", err)
	}
	return nil
}

func (p *Pipeline) observe(ctx context.Context, report *RunReport, started time.Time, runErr error) {
	if p.metrics == nil {
		return
	}
	finished := p.now()

	var summary *models.RunSummary
	if report != nil {
		summary = &report.RunSummary
	}
	p.metrics.ObserveRun(summary, finished.Sub(started), runErr, finished)

	if p.opts.PushgatewayURL == "" {
		return
	}
	if err := p.metrics.Push(ctx, p.opts.PushgatewayURL); err != nil {
		p.logger.Warn("failed to push metrics", zap.Error(err))
	}
}
