package master

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

func newTestFileStore(t *testing.T) (*FileStore, string, string) {
	t.Helper()
	dir := t.TempDir()
	masterPath := filepath.Join(dir, "master_jobs.json")
	trendPath := filepath.Join(dir, "job_count_history.csv")
	return NewFileStore(masterPath, trendPath, zap.NewNop()), masterPath, trendPath
}

func TestFileStore_MergeFirstRun(t *testing.T) {
	store, masterPath, _ := newTestFileStore(t)
	ctx := context.Background()

	records, err := store.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	result, err := store.Merge(ctx, []models.JobRecord{
		record("a", "https://x/1", ""),
		record("b", "https://x/2", ""),
	}, runTime)
	require.NoError(t, err)
	assert.Len(t, result.Added, 2)
	assert.Equal(t, 2, result.Total)
	assert.FileExists(t, masterPath)

	records, err = store.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2026-W10", records[0].ImportWeek)
}

func TestFileStore_MergeIdempotent(t *testing.T) {
	store, masterPath, _ := newTestFileStore(t)
	ctx := context.Background()
	batch := []models.JobRecord{record("a", "https://x/1", ""), record("b", "https://x/2", "")}

	_, err := store.Merge(ctx, batch, runTime)
	require.NoError(t, err)
	first, err := os.ReadFile(masterPath)
	require.NoError(t, err)

	result, err := store.Merge(ctx, batch, runTime)
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Equal(t, 2, result.Duplicates)

	second, err := os.ReadFile(masterPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestFileStore_MergeKeepsForeignFields(t *testing.T) {
	store, masterPath, _ := newTestFileStore(t)
	ctx := context.Background()
	seed := `[
  {
    "job_id": "legacy",
    "title": "Prompt Engineer",
    "company": "Acme",
    "source_url": "https://x/1",
    "salary_min": 0,
    "salary_max": 150000,
    "salary_currency": "EUR",
    "recruiter": {"name": "Dana"}
  }
]`
	require.NoError(t, os.WriteFile(masterPath, []byte(seed), 0o644))

	result, err := store.Merge(ctx, []models.JobRecord{
		record("a", "https://x/1", ""),
		record("b", "https://x/2", ""),
	}, runTime)
	require.NoError(t, err)
	assert.Len(t, result.Added, 1)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Total)

	data, err := os.ReadFile(masterPath)
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "EUR", raw[0]["salary_currency"])
	assert.Equal(t, map[string]any{"name": "Dana"}, raw[0]["recruiter"])
	assert.NotContains(t, raw[0], "remote_type", "existing rows are not re-encoded")
	assert.Equal(t, "b", raw[1]["job_id"])

	records, err := store.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].SalaryMin)
	assert.Equal(t, 150000, *records[0].SalaryMax)
}

func TestFileStore_MergeKeepsExistingRows(t *testing.T) {
	store, _, _ := newTestFileStore(t)
	ctx := context.Background()

	_, err := store.Merge(ctx, []models.JobRecord{record("a", "https://x/1", ""), record("b", "https://x/2", "")}, runTime)
	require.NoError(t, err)
	before, err := store.Records(ctx)
	require.NoError(t, err)

	_, err = store.Merge(ctx, []models.JobRecord{record("c", "https://x/3", "")}, runTime.AddDate(0, 0, 1))
	require.NoError(t, err)
	after, err := store.Records(ctx)
	require.NoError(t, err)

	require.Len(t, after, 3)
	assert.Equal(t, before, after[:len(before)])
	assert.Equal(t, "2026-03-03", after[2].ImportDate)
}

func TestFileStore_UndecodableRow(t *testing.T) {
	store, masterPath, _ := newTestFileStore(t)
	require.NoError(t, os.WriteFile(masterPath, []byte(`[{"source_url": "https://x/1"}, 42]`), 0o644))

	_, err := store.Merge(context.Background(), []models.JobRecord{record("a", "https://x/2", "")}, runTime)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTypeInvalidInput, errors.TypeOf(err))
}

func TestFileStore_EmptyBatchCreatesMaster(t *testing.T) {
	store, masterPath, _ := newTestFileStore(t)

	result, err := store.Merge(context.Background(), nil, runTime)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)

	data, err := os.ReadFile(masterPath)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestFileStore_CorruptMaster(t *testing.T) {
	store, masterPath, _ := newTestFileStore(t)
	require.NoError(t, os.WriteFile(masterPath, []byte("{not json"), 0o644))

	_, err := store.Merge(context.Background(), []models.JobRecord{record("a", "https://x/1", "")}, runTime)
	require.Error(t, err)
	assert.Equal(t, errors.ErrTypeInvalidInput, errors.TypeOf(err))

	data, err := os.ReadFile(masterPath)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "a failed merge must not touch the master")
}

func TestFileStore_Trends(t *testing.T) {
	store, _, trendPath := newTestFileStore(t)
	ctx := context.Background()

	points, err := store.Trends(ctx)
	require.NoError(t, err)
	assert.Empty(t, points)

	require.NoError(t, store.UpsertTrend(ctx, models.TrendPoint{Date: "2026-03-01", JobCount: 10}))
	require.NoError(t, store.UpsertTrend(ctx, models.TrendPoint{Date: "2026-03-02", JobCount: 12}))
	require.NoError(t, store.UpsertTrend(ctx, models.TrendPoint{Date: "2026-03-02", JobCount: 14}))

	data, err := os.ReadFile(trendPath)
	require.NoError(t, err)
	assert.Equal(t, "date,job_count\n2026-03-01,10\n2026-03-02,14\n", string(data))

	points, err = store.Trends(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.TrendPoint{
		{Date: "2026-03-01", JobCount: 10},
		{Date: "2026-03-02", JobCount: 14},
	}, points)
}

func TestFileStore_TrendsSkipMalformedRows(t *testing.T) {
	store, _, trendPath := newTestFileStore(t)
	require.NoError(t, os.WriteFile(trendPath, []byte("date,job_count\n2026-03-01,ten\n2026-03-02,12\n"), 0o644))

	points, err := store.Trends(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.TrendPoint{{Date: "2026-03-02", JobCount: 12}}, points)
}
