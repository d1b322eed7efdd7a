package migrations

import "github.com/romelikethecity/pecollective/common/database/schema"

// All lists every migration in version order.
var All = []schema.Migration{
	CreateJobRecordsTable,
	CreateJobTrendsTable,
	CreateEnrichmentRunsTable,
}
