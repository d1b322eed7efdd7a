package models

// RunSummary describes one completed pipeline run.
type RunSummary struct {
	RunID             string `json:"run_id"`
	StartedAt         string `json:"started_at"`
	Date              string `json:"date"`
	Source            string `json:"source"`
	RowsRead          int    `json:"rows_read"`
	RowsSkipped       int    `json:"rows_skipped"`
	DuplicatesDropped int    `json:"duplicates_dropped"`
	URLConflicts      int    `json:"url_conflicts"`
	Records           int    `json:"records"`
	Added             int    `json:"added"`
	MasterDuplicates  int    `json:"master_duplicates"`
	Unkeyed           int    `json:"unkeyed"`
	MasterTotal       int    `json:"master_total"`
	StalePages        int    `json:"stale_pages"`
}
