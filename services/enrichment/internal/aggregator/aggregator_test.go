package aggregator

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/vocabulary"
)

func newTestAggregator(t *testing.T, opts Options) *Aggregator {
	t.Helper()
	vocab, err := vocabulary.Default()
	require.NoError(t, err)
	return New(vocab, opts)
}

func job(category, level, remote, metro string, salaryMax *int, skills ...string) models.JobRecord {
	if skills == nil {
		skills = []string{}
	}
	return models.JobRecord{
		Title:           category,
		Company:         "Acme",
		JobCategory:     category,
		ExperienceLevel: level,
		RemoteType:      remote,
		Metro:           metro,
		SalaryMax:       salaryMax,
		SkillsTags:      skills,
	}
}

func sampleBatch() []models.JobRecord {
	return []models.JobRecord{
		job("Prompt Engineer", "senior", "remote", "Remote", models.IntPtr(150000), "Python", "LangChain"),
		job("AI/ML Engineer", "mid", "onsite", "Seattle", nil, "PyTorch", "Python"),
		job("AI/ML Engineer", "mid", "hybrid", "New York", models.IntPtr(120000), "Python", "COBOL"),
		job("Data Scientist", "entry", "onsite", "", models.IntPtr(90000), "LangChain"),
		job("AI/ML Engineer", "senior", "onsite", "Seattle", models.IntPtr(200000)),
	}
}

func TestAggregate(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())

	intel := a.Aggregate(sampleBatch(), "2026-03-02")

	assert.Equal(t, "2026-03-02", intel.Date)
	assert.Equal(t, 5, intel.TotalJobs)
	assert.Equal(t, models.FrequencyTable{
		{Label: "Python", Count: 3},
		{Label: "LangChain", Count: 2},
		{Label: "PyTorch", Count: 1},
		{Label: "COBOL", Count: 1},
	}, intel.Skills)
	assert.Equal(t, []string{"AI/ML Engineer", "Prompt Engineer", "Data Scientist"}, intel.Categories.Labels())
	assert.Equal(t, []string{"senior", "mid", "entry"}, intel.ExperienceLevels.Labels())
	assert.Equal(t, []string{"onsite", "remote", "hybrid"}, intel.RemoteBreakdown.Labels())
	assert.Equal(t, models.FrequencyTable{
		{Label: "Seattle", Count: 2},
		{Label: "Remote", Count: 1},
		{Label: "New York", Count: 1},
	}, intel.TopMetros)

	assert.Equal(t, models.SalaryStats{
		Min:             90000,
		Max:             200000,
		Median:          150000,
		Avg:             140000,
		CountWithSalary: 4,
	}, intel.SalaryStats)
}

func TestAggregate_SkillsByCategory(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())

	intel := a.Aggregate(sampleBatch(), "2026-03-02")

	categories := make([]string, len(intel.SkillsByCategory))
	for i, g := range intel.SkillsByCategory {
		categories[i] = g.Category
	}
	assert.Equal(t, []string{"LLM Frameworks", "ML Frameworks", "Languages", "Other"}, categories)

	other, ok := intel.SkillsByCategory.Get("Other")
	require.True(t, ok)
	assert.Equal(t, models.FrequencyTable{{Label: "COBOL", Count: 1}}, other)
}

func TestAggregate_NoSalaries(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())

	intel := a.Aggregate([]models.JobRecord{job("Data Scientist", "mid", "onsite", "", nil)}, "2026-03-02")
	assert.True(t, intel.SalaryStats.Empty())

	data, err := json.Marshal(intel)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"salary_stats":{}`)
	assert.Contains(t, string(data), `"top_metros":{}`)
	assert.Contains(t, string(data), `"skills":{}`)
}

func TestAggregate_Empty(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())

	intel := a.Aggregate(nil, "2026-03-02")
	assert.Equal(t, 0, intel.TotalJobs)
	assert.Empty(t, intel.Skills)
	assert.True(t, intel.SalaryStats.Empty())
}

func TestAggregate_TopLimits(t *testing.T) {
	opts := DefaultOptions()
	opts.SkillsTop = 2
	opts.MetrosTop = 1
	a := newTestAggregator(t, opts)

	intel := a.Aggregate(sampleBatch(), "2026-03-02")
	assert.Equal(t, []string{"Python", "LangChain"}, intel.Skills.Labels())
	assert.Equal(t, []string{"Seattle"}, intel.TopMetros.Labels())

	// the category breakdown is not truncated
	frameworks, ok := intel.SkillsByCategory.Get("ML Frameworks")
	require.True(t, ok)
	assert.Equal(t, []string{"PyTorch"}, frameworks.Labels())
}

func TestAggregate_Pure(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())
	batch := sampleBatch()

	first, err := json.Marshal(a.Aggregate(batch, "2026-03-02"))
	require.NoError(t, err)
	second, err := json.Marshal(a.Aggregate(batch, "2026-03-02"))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	if diff := cmp.Diff(sampleBatch(), batch); diff != "" {
		t.Errorf("Aggregate mutated its input (-want +got):\n%s", diff)
	}
}

func TestBenchmarks(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())

	records := []models.JobRecord{
		{Company: "A", JobCategory: "Prompt Engineer", ExperienceLevel: "senior", RemoteType: "remote", Metro: "Remote", SalaryMin: models.IntPtr(100000), SalaryMax: models.IntPtr(150000)},
		{Company: "B", JobCategory: "Prompt Engineer", ExperienceLevel: "senior", RemoteType: "remote", Metro: "Remote", SalaryMax: models.IntPtr(180000)},
		{Company: "C", JobCategory: "Prompt Engineer", ExperienceLevel: "senior", RemoteType: "onsite", Metro: "Seattle", SalaryMin: models.IntPtr(120000), SalaryMax: models.IntPtr(150000)},
		{Company: "D", JobCategory: "Prompt Engineer", ExperienceLevel: "mid", RemoteType: "remote", Metro: "", SalaryMax: models.IntPtr(130000)},
		{Company: "E", JobCategory: "Prompt Engineer", ExperienceLevel: "senior", RemoteType: "onsite", Metro: "Seattle"},
		{Company: "F", JobCategory: "Data Scientist", ExperienceLevel: "senior", RemoteType: "onsite", Metro: "Seattle", SalaryMax: models.IntPtr(110000)},
	}

	got := a.Benchmarks(records)
	require.Len(t, got, 3)

	role := got[0]
	assert.Equal(t, models.BenchmarkRole, role.Kind)
	assert.Equal(t, "Prompt Engineer", role.Key)
	assert.Equal(t, "prompt-engineer", role.Slug)
	assert.Equal(t, 4, role.SampleSize)
	require.NotNil(t, role.AvgMin)
	assert.Equal(t, 110000, *role.AvgMin)
	assert.Equal(t, 152500, role.AvgMax)
	assert.Equal(t, 150000, role.Median)
	assert.Equal(t, []models.CompanySalary{
		{Company: "B", SalaryMax: 180000},
		{Company: "A", SalaryMax: 150000},
		{Company: "C", SalaryMax: 150000},
		{Company: "D", SalaryMax: 130000},
	}, role.TopCompanies)

	remote := got[1]
	assert.Equal(t, models.BenchmarkMetro, remote.Kind)
	assert.Equal(t, "Remote", remote.Key)
	assert.Equal(t, 3, remote.SampleSize)
	assert.Equal(t, 150000, remote.Median)

	senior := got[2]
	assert.Equal(t, models.BenchmarkExperience, senior.Kind)
	assert.Equal(t, "senior", senior.Key)
	assert.Equal(t, 4, senior.SampleSize)
	assert.Equal(t, 150000, senior.Median)
}

func TestBenchmarks_EvenMedianAndNoMin(t *testing.T) {
	opts := DefaultOptions()
	opts.BenchmarkTopCompanies = 2
	a := newTestAggregator(t, opts)

	var records []models.JobRecord
	for _, s := range []int{100000, 110000, 130000, 200000} {
		records = append(records, models.JobRecord{Company: "X", JobCategory: "Data Scientist", ExperienceLevel: "entry", SalaryMax: models.IntPtr(s)})
	}

	got := a.Benchmarks(records)
	require.Len(t, got, 2)
	assert.Equal(t, "Data Scientist", got[0].Key)
	assert.Nil(t, got[0].AvgMin)
	assert.Equal(t, 120000, got[0].Median)
	assert.Len(t, got[0].TopCompanies, 2)
	assert.Equal(t, "entry", got[1].Key)
}

func TestBenchmarks_BelowMinimum(t *testing.T) {
	a := newTestAggregator(t, DefaultOptions())

	got := a.Benchmarks([]models.JobRecord{
		{JobCategory: "Data Scientist", SalaryMax: models.IntPtr(100000)},
		{JobCategory: "Data Scientist", SalaryMax: models.IntPtr(120000)},
	})
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
