package master

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	source_url   TEXT PRIMARY KEY,
	job_id       TEXT NOT NULL,
	title        TEXT NOT NULL,
	company      TEXT NOT NULL,
	job_category TEXT NOT NULL,
	import_date  TEXT NOT NULL,
	import_week  TEXT NOT NULL,
	record       TEXT NOT NULL,
	created_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_jobs_import_date ON jobs(import_date);
CREATE TABLE IF NOT EXISTS job_trends (
	date      TEXT PRIMARY KEY,
	job_count INTEGER NOT NULL
);`

// SQLiteStore keeps the master table in a local SQLite database. Each merge
// runs in one transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Internal("creating sqlite directory", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Unavailable(fmt.Sprintf("opening sqlite %s", path), err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Internal("creating sqlite schema", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Merge(ctx context.Context, batch []models.JobRecord, now time.Time) (*MergeResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Unavailable("beginning merge", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jobs (source_url, job_id, title, company, job_category, import_date, import_week, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_url) DO NOTHING`)
	if err != nil {
		return nil, errors.Internal("preparing insert", err)
	}
	defer stmt.Close()

	result := &MergeResult{Added: []models.JobRecord{}}
	date, week := ImportDate(now), ImportWeek(now)
	for _, r := range batch {
		key := Key(r)
		if key == "" {
			result.Unkeyed++
			continue
		}
		r.ImportDate, r.ImportWeek = date, week

		data, err := json.Marshal(r)
		if err != nil {
			return nil, errors.Internal("encoding record", err)
		}
		res, err := stmt.ExecContext(ctx, key, r.JobID, r.Title, r.Company, r.JobCategory, date, week, string(data))
		if err != nil {
			return nil, errors.Internal(fmt.Sprintf("inserting %s", key), err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, errors.Internal("reading rows affected", err)
		}
		if affected == 0 {
			result.Duplicates++
			continue
		}
		result.Added = append(result.Added, r)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`).Scan(&result.Total); err != nil {
		return nil, errors.Internal("counting master", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Internal("committing merge", err)
	}

	s.logger.Info("master updated",
		zap.String("backend", "sqlite"),
		zap.Int("added", len(result.Added)),
		zap.Int("total", result.Total))
	return result, nil
}

// Records returns the master table in insertion order.
func (s *SQLiteStore) Records(ctx context.Context) ([]models.JobRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM jobs ORDER BY rowid`)
	if err != nil {
		return nil, errors.Internal("querying master", err)
	}
	defer rows.Close()

	records := []models.JobRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Internal("scanning master", err)
		}
		var r models.JobRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			s.logger.Warn("skipping undecodable master row", zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) UpsertTrend(ctx context.Context, point models.TrendPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_trends (date, job_count) VALUES (?, ?)
		ON CONFLICT(date) DO UPDATE SET job_count = excluded.job_count`,
		point.Date, point.JobCount)
	if err != nil {
		return errors.Internal("upserting trend", err)
	}
	return nil
}

func (s *SQLiteStore) Trends(ctx context.Context) ([]models.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, job_count FROM job_trends ORDER BY date`)
	if err != nil {
		return nil, errors.Internal("querying trends", err)
	}
	defer rows.Close()

	points := []models.TrendPoint{}
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Date, &p.JobCount); err != nil {
			return nil, errors.Internal("scanning trend", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
