package master

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

// JobRow is one master record as stored in Postgres.
type JobRow struct {
	SourceURL   string    `gorm:"column:source_url;type:text;primaryKey"`
	JobID       string    `gorm:"column:job_id;type:text;not null"`
	Title       string    `gorm:"column:title;type:text;not null"`
	Company     string    `gorm:"column:company;type:text;not null"`
	JobCategory string    `gorm:"column:job_category;type:text;not null;index"`
	ImportDate  string    `gorm:"column:import_date;type:text;not null;index"`
	ImportWeek  string    `gorm:"column:import_week;type:text;not null"`
	Record      string    `gorm:"column:record;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp with time zone"`
}

func (JobRow) TableName() string {
	return "jobs"
}

type TrendRow struct {
	Date     string `gorm:"column:date;type:text;primaryKey"`
	JobCount int    `gorm:"column:job_count;not null"`
}

func (TrendRow) TableName() string {
	return "job_trends"
}

// PostgresStore keeps the master table in Postgres through gorm.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPostgresStore(db *gorm.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// OpenPostgres connects to dsn and creates the tables when missing.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Unavailable("connecting to postgres", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&JobRow{}, &TrendRow{}); err != nil {
		return nil, errors.Internal("migrating postgres schema", err)
	}
	return NewPostgresStore(db, logger), nil
}

func (s *PostgresStore) Merge(ctx context.Context, batch []models.JobRecord, now time.Time) (*MergeResult, error) {
	result := &MergeResult{Added: []models.JobRecord{}}
	date, week := ImportDate(now), ImportWeek(now)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range batch {
			key := Key(r)
			if key == "" {
				result.Unkeyed++
				continue
			}
			r.ImportDate, r.ImportWeek = date, week

			data, err := json.Marshal(r)
			if err != nil {
				return errors.Internal("encoding record", err)
			}
			row := JobRow{
				SourceURL:   key,
				JobID:       r.JobID,
				Title:       r.Title,
				Company:     r.Company,
				JobCategory: r.JobCategory,
				ImportDate:  date,
				ImportWeek:  week,
				Record:      string(data),
				CreatedAt:   now,
			}

			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if res.Error != nil {
				return errors.Internal("inserting "+key, res.Error)
			}
			if res.RowsAffected == 0 {
				result.Duplicates++
				continue
			}
			result.Added = append(result.Added, r)
		}

		var total int64
		if err := tx.Model(&JobRow{}).Count(&total).Error; err != nil {
			return errors.Internal("counting master", err)
		}
		result.Total = int(total)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("master updated",
		zap.String("backend", "postgres"),
		zap.Int("added", len(result.Added)),
		zap.Int("total", result.Total))
	return result, nil
}

func (s *PostgresStore) UpsertTrend(ctx context.Context, point models.TrendPoint) error {
	row := TrendRow{Date: point.Date, JobCount: point.JobCount}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"job_count"}),
		}).
		Create(&row).Error
	if err != nil {
		return errors.Internal("upserting trend", err)
	}
	return nil
}

func (s *PostgresStore) Trends(ctx context.Context) ([]models.TrendPoint, error) {
	var rows []TrendRow
	if err := s.db.WithContext(ctx).Order("date").Find(&rows).Error; err != nil {
		return nil, errors.Internal("querying trends", err)
	}

	points := make([]models.TrendPoint, len(rows))
	for i, row := range rows {
		points[i] = models.TrendPoint{Date: row.Date, JobCount: row.JobCount}
	}
	return points, nil
}

// Records returns the master table in insertion order.
func (s *PostgresStore) Records(ctx context.Context) ([]models.JobRecord, error) {
	var rows []JobRow
	if err := s.db.WithContext(ctx).Order("created_at, source_url").Find(&rows).Error; err != nil {
		return nil, errors.Internal("querying master", err)
	}

	records := make([]models.JobRecord, 0, len(rows))
	for _, row := range rows {
		var r models.JobRecord
		if err := json.Unmarshal([]byte(row.Record), &r); err != nil {
			s.logger.Warn("skipping undecodable master row", zap.String("source_url", row.SourceURL), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
