package migrations

import "github.com/romelikethecity/pecollective/common/database/schema"

var CreateJobRecordsTable = schema.Migration{
	Version:     1,
	Description: "Create job_records table",
	Up: `
		CREATE TABLE IF NOT EXISTS job_records (
			source_url String,
			job_id String,
			title String,
			company String,
			location String,
			metro String,
			remote_type LowCardinality(String),
			salary_min Nullable(Int64),
			salary_max Nullable(Int64),
			salary_type LowCardinality(String),
			experience_level LowCardinality(String),
			job_category LowCardinality(String),
			skills_tags Array(String),
			date_posted String,
			date_scraped Date,
			source LowCardinality(String),
			import_week String,
			updated_at DateTime
		) ENGINE = ReplacingMergeTree(updated_at)
		PARTITION BY toYYYYMM(date_scraped)
		ORDER BY (source_url)
		SETTINGS index_granularity = 8192
	`,
	Down: `DROP TABLE IF EXISTS job_records`,
}
