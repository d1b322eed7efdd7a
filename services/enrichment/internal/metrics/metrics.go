package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

const pushJob = "pecollective_enrichment"

type Registry struct {
	reg               *prometheus.Registry
	Runs              *prometheus.CounterVec
	RowsRead          prometheus.Counter
	RowsSkipped       prometheus.Counter
	DuplicatesDropped prometheus.Counter
	URLConflicts      prometheus.Counter
	RecordsEnriched   prometheus.Counter
	MasterAdded       prometheus.Counter
	MasterDuplicates  prometheus.Counter
	MasterSize        prometheus.Gauge
	StalePages        prometheus.Gauge
	LastSuccess       prometheus.Gauge
	RunDurationSec    prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "enrichment_runs_total"}, []string{"status"})
	rowsRead := prometheus.NewCounter(prometheus.CounterOpts{Name: "enrichment_rows_read_total"})
	rowsSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "enrichment_rows_skipped_total"})
	dupDropped := prometheus.NewCounter(prometheus.CounterOpts{Name: "enrichment_raw_duplicates_total"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{Name: "enrichment_url_conflicts_total"})
	enriched := prometheus.NewCounter(prometheus.CounterOpts{Name: "enrichment_records_total"})
	added := prometheus.NewCounter(prometheus.CounterOpts{Name: "enrichment_master_added_total"})
	masterDup := prometheus.NewCounter(prometheus.CounterOpts{Name: "enrichment_master_duplicates_total"})
	masterSize := prometheus.NewGauge(prometheus.GaugeOpts{Name: "enrichment_master_size"})
	stale := prometheus.NewGauge(prometheus.GaugeOpts{Name: "enrichment_stale_pages"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{Name: "enrichment_last_success_timestamp_seconds"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "enrichment_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(runs, rowsRead, rowsSkipped, dupDropped, conflicts, enriched, added, masterDup, masterSize, stale, lastSuccess, duration)
	return &Registry{
		reg:               r,
		Runs:              runs,
		RowsRead:          rowsRead,
		RowsSkipped:       rowsSkipped,
		DuplicatesDropped: dupDropped,
		URLConflicts:      conflicts,
		RecordsEnriched:   enriched,
		MasterAdded:       added,
		MasterDuplicates:  masterDup,
		MasterSize:        masterSize,
		StalePages:        stale,
		LastSuccess:       lastSuccess,
		RunDurationSec:    duration,
	}
}

// ObserveRun records the outcome of one pipeline run. summary may be nil
// when the run failed before producing one.
func (r *Registry) ObserveRun(summary *models.RunSummary, elapsed time.Duration, err error, finished time.Time) {
	r.RunDurationSec.Observe(elapsed.Seconds())
	if err != nil {
		r.Runs.WithLabelValues("error").Inc()
	} else {
		r.Runs.WithLabelValues("ok").Inc()
		r.LastSuccess.Set(float64(finished.Unix()))
	}
	if summary == nil {
		return
	}

	r.RowsRead.Add(float64(summary.RowsRead))
	r.RowsSkipped.Add(float64(summary.RowsSkipped))
	r.DuplicatesDropped.Add(float64(summary.DuplicatesDropped))
	r.URLConflicts.Add(float64(summary.URLConflicts))
	r.RecordsEnriched.Add(float64(summary.Records))
	r.MasterAdded.Add(float64(summary.Added))
	r.MasterDuplicates.Add(float64(summary.MasterDuplicates))
	r.MasterSize.Set(float64(summary.MasterTotal))
	r.StalePages.Set(float64(summary.StalePages))
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Push sends the current values to a Prometheus Pushgateway.
func (r *Registry) Push(ctx context.Context, url string) error {
	if err := push.New(url, pushJob).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
