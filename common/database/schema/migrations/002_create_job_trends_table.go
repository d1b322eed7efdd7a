package migrations

import "github.com/romelikethecity/pecollective/common/database/schema"

var CreateJobTrendsTable = schema.Migration{
	Version:     2,
	Description: "Create job_trends table",
	Up: `
		CREATE TABLE IF NOT EXISTS job_trends (
			date Date,
			job_count UInt32,
			updated_at DateTime
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (date)
	`,
	Down: `DROP TABLE IF EXISTS job_trends`,
}
