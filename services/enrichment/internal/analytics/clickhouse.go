// Package analytics mirrors the live job set, the trend series and run
// summaries into ClickHouse for ad-hoc reporting.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/telemetry"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/master"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

var tracer = telemetry.GetTracer("pecollective/enrichment/analytics")

const (
	insertJobRecords = `INSERT INTO job_records (
		source_url, job_id, title, company, location, metro, remote_type,
		salary_min, salary_max, salary_type, experience_level, job_category,
		skills_tags, date_posted, date_scraped, source, import_week, updated_at
	)`

	insertTrend = `INSERT INTO job_trends (date, job_count, updated_at) VALUES (?, ?, ?)`

	insertRun = `INSERT INTO enrichment_runs (
		run_id, started_at, source, rows_read, rows_skipped, duplicates_dropped,
		records, added, master_total, stale_pages
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// Conn is the part of clickhouse.Conn the sink needs.
type Conn interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Exec(ctx context.Context, query string, args ...any) error
}

type ClickHouseSink struct {
	conn   Conn
	logger *zap.Logger
	now    func() time.Time
}

func NewClickHouseSink(conn Conn, logger *zap.Logger) *ClickHouseSink {
	return &ClickHouseSink{conn: conn, logger: logger, now: time.Now}
}

// MirrorRecords appends the records in one batch. The table is a
// ReplacingMergeTree on source_url, so re-sent postings collapse to the latest
// version. Records without a merge key are left out.
func (s *ClickHouseSink) MirrorRecords(ctx context.Context, records []models.JobRecord) (int, error) {
	ctx, span := tracer.Start(ctx, "ClickHouseSink.MirrorRecords")
	defer span.End()

	batch, err := s.conn.PrepareBatch(ctx, insertJobRecords)
	if err != nil {
		telemetry.Fail(span, err)
		return 0, fmt.Errorf("prepare job_records batch: %w", err)
	}

	updatedAt := s.now().UTC()
	sent := 0
	for _, r := range records {
		key := master.Key(r)
		if key == "" {
			continue
		}
		if err := batch.Append(
			key,
			r.JobID,
			r.Title,
			r.Company,
			r.Location,
			r.Metro,
			r.RemoteType,
			nullableInt(r.SalaryMin),
			nullableInt(r.SalaryMax),
			r.SalaryType,
			r.ExperienceLevel,
			r.JobCategory,
			skills(r.SkillsTags),
			r.DatePosted,
			parseDate(r.DateScraped, updatedAt),
			r.Source,
			r.ImportWeek,
			updatedAt,
		); err != nil {
			batch.Abort()
			telemetry.Fail(span, err)
			return 0, fmt.Errorf("append %s: %w", key, err)
		}
		sent++
	}

	if sent == 0 {
		batch.Abort()
		return 0, nil
	}
	if err := batch.Send(); err != nil {
		telemetry.Fail(span, err)
		return 0, fmt.Errorf("send job_records batch: %w", err)
	}

	span.SetAttributes(telemetry.Int("rows", sent))
	s.logger.Debug("mirrored job records to clickhouse", zap.Int("rows", sent))
	return sent, nil
}

func (s *ClickHouseSink) RecordTrend(ctx context.Context, point models.TrendPoint) error {
	now := s.now().UTC()
	if err := s.conn.Exec(ctx, insertTrend, parseDate(point.Date, now), uint32(point.JobCount), now); err != nil {
		return fmt.Errorf("insert trend %s: %w", point.Date, err)
	}
	return nil
}

func (s *ClickHouseSink) RecordRun(ctx context.Context, summary models.RunSummary) error {
	startedAt, err := time.Parse(time.RFC3339, summary.StartedAt)
	if err != nil {
		startedAt = s.now().UTC()
	}
	if err := s.conn.Exec(ctx, insertRun,
		summary.RunID,
		startedAt,
		summary.Source,
		uint32(summary.RowsRead),
		uint32(summary.RowsSkipped),
		uint32(summary.DuplicatesDropped),
		uint32(summary.Records),
		uint32(summary.Added),
		uint32(summary.MasterTotal),
		uint32(summary.StalePages),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", summary.RunID, err)
	}
	return nil
}

func nullableInt(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func skills(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func parseDate(value string, fallback time.Time) time.Time {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t
	}
	return fallback
}
