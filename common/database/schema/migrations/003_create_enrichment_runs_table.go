package migrations

import "github.com/romelikethecity/pecollective/common/database/schema"

var CreateEnrichmentRunsTable = schema.Migration{
	Version:     3,
	Description: "Create enrichment_runs table",
	Up: `
		CREATE TABLE IF NOT EXISTS enrichment_runs (
			run_id String,
			started_at DateTime,
			source String,
			rows_read UInt32,
			rows_skipped UInt32,
			duplicates_dropped UInt32,
			records UInt32,
			added UInt32,
			master_total UInt32,
			stale_pages UInt32
		) ENGINE = MergeTree()
		ORDER BY (started_at)
	`,
	Down: `DROP TABLE IF EXISTS enrichment_runs`,
}
