package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/common/cache"
	"github.com/romelikethecity/pecollective/common/cache/memory"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/enricher"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/normalizer"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/output"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/recommender"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/vocabulary"
)

var fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func liveJobs() []models.JobRecord {
	return []models.JobRecord{
		{Title: "Data Analyst", Company: "Globex", Location: "Chicago, IL", JobCategory: "Other"},
		{Title: "Senior Prompt Engineer", Company: "Acme", Location: "Remote", RemoteType: models.RemoteTypeRemote, JobCategory: "Prompt Engineer", SalaryMax: models.IntPtr(124800)},
		{Title: "Prompt Engineer", Company: "Hooli", Location: "Remote", RemoteType: models.RemoteTypeRemote, JobCategory: "Prompt Engineer"},
	}
}

func benchmarks() models.BenchmarkSet {
	return models.BenchmarkSet{
		{Kind: models.BenchmarkRole, Key: "Prompt Engineer", Slug: "prompt-engineer", SampleSize: 3, AvgMax: 150000, Median: 150000},
		{Kind: models.BenchmarkMetro, Key: "Remote", Slug: "remote", SampleSize: 4, AvgMax: 140000, Median: 135000},
	}
}

type fixture struct {
	server *Server
	cache  cache.Cache
	writer *output.Writer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	vocab, err := vocabulary.Default()
	require.NoError(t, err)
	e := enricher.New(normalizer.New(vocab), func() time.Time { return fixedNow })

	c := memory.New(cache.DefaultOptions())
	writer := output.NewWriter(t.TempDir(), logger)
	return &fixture{
		server: New(NewSnapshot(c, writer, logger), e, 2, logger),
		cache:  c,
		writer: writer,
	}
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestFindSimilarJobs_FromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live := liveJobs()
	require.NoError(t, f.cache.Set(ctx, models.SnapshotLiveJobs, models.JobSet(live), 0))

	result, err := f.server.handleFindSimilar(ctx, callRequest("find_similar_jobs", map[string]interface{}{
		"slug": "acme-senior-prompt-engineer-0a1b2c",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var recs []models.Recommendation
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, recommender.JobSlug(live[1], 1), recs[0].Slug)
	assert.Equal(t, "Hooli", recs[1].Company)
}

func TestFindSimilarJobs_LimitAndFileFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.writer.WriteJobs(liveJobs(), fixedNow)
	require.NoError(t, err)

	// integer arguments arrive as JSON numbers
	result, err := f.server.handleFindSimilar(ctx, callRequest("find_similar_jobs", map[string]interface{}{
		"slug":  "initech-ml-engineer-ffffff",
		"limit": float64(3),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var recs []models.Recommendation
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &recs))
	assert.Len(t, recs, 3)
	assert.Equal(t, "Acme", recs[0].Company)
}

func TestFindSimilarJobs_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleFindSimilar(ctx, callRequest("find_similar_jobs", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "slug")

	// nothing cached and no jobs file on disk
	result, err = f.server.handleFindSimilar(ctx, callRequest("find_similar_jobs", map[string]interface{}{"slug": "acme-x-1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to load live jobs")
}

func TestMarketIntelligence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleMarketIntelligence(ctx, callRequest("market_intelligence", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	intel := models.MarketIntelligence{
		Date:       "2026-03-02",
		TotalJobs:  3,
		Categories: models.FrequencyTable{{Label: "Prompt Engineer", Count: 2}, {Label: "Other", Count: 1}},
	}
	require.NoError(t, f.cache.Set(ctx, models.SnapshotMarketIntelligence, intel, 0))

	result, err = f.server.handleMarketIntelligence(ctx, callRequest("market_intelligence", nil))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var got models.MarketIntelligence
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &got))
	assert.Equal(t, 3, got.TotalJobs)
	count, ok := got.Categories.Get("Prompt Engineer")
	assert.True(t, ok)
	assert.Equal(t, 2, count)
}

func TestClassifyJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.server.handleClassifyJob(ctx, callRequest("classify_job", map[string]interface{}{
		"title":       "Senior Prompt Engineer",
		"company":     "Acme",
		"location":    "Remote",
		"description": "Build agents",
		"min_amount":  "40",
		"max_amount":  "60",
		"interval":    "hourly",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var record models.JobRecord
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &record))
	assert.Equal(t, enricher.JobID("Acme", "Senior Prompt Engineer", "Remote"), record.JobID)
	assert.Equal(t, "Prompt Engineer", record.JobCategory)
	assert.Equal(t, models.ExperienceSenior, record.ExperienceLevel)
	assert.Equal(t, models.RemoteTypeRemote, record.RemoteType)
	require.NotNil(t, record.SalaryMax)
	assert.Equal(t, 124800, *record.SalaryMax)
	assert.Empty(t, record.Description)

	result, err = f.server.handleClassifyJob(ctx, callRequest("classify_job", map[string]interface{}{"location": "Remote"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = f.server.handleClassifyJob(ctx, mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSalaryBenchmarks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.writer.WriteBenchmarks(benchmarks(), fixedNow)
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    map[string]interface{}
		want    []string
		wantErr bool
	}{
		{name: "all", args: nil, want: []string{"prompt-engineer", "remote"}},
		{name: "role", args: map[string]interface{}{"kind": "role"}, want: []string{"prompt-engineer"}},
		{name: "case insensitive", args: map[string]interface{}{"kind": " Metro "}, want: []string{"remote"}},
		{name: "no experience buckets", args: map[string]interface{}{"kind": "experience"}, want: []string{}},
		{name: "unknown kind", args: map[string]interface{}{"kind": "company"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.server.handleSalaryBenchmarks(ctx, callRequest("salary_benchmarks", tt.args))
			require.NoError(t, err)
			if tt.wantErr {
				assert.True(t, result.IsError)
				return
			}
			require.False(t, result.IsError, resultText(t, result))

			var got []models.SalaryBenchmark
			require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &got))
			slugs := []string{}
			for _, b := range got {
				slugs = append(slugs, b.Slug)
			}
			assert.Equal(t, tt.want, slugs)
		})
	}
}

func TestMCPServer_RegistersTools(t *testing.T) {
	f := newFixture(t)
	srv := f.server.MCPServer()

	tools := srv.ListTools()
	for _, name := range []string{"find_similar_jobs", "market_intelligence", "classify_job", "salary_benchmarks"} {
		assert.Contains(t, tools, name)
	}
}
