// Package aggregator derives market statistics from an enriched batch. Every
// function here is pure: the same input always yields the same output.
package aggregator

import (
	"sort"
	"strings"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/vocabulary"
)

type Options struct {
	SkillsTop             int
	MetrosTop             int
	BenchmarkMinSamples   int
	BenchmarkTopCompanies int
}

func DefaultOptions() Options {
	return Options{
		SkillsTop:             50,
		MetrosTop:             10,
		BenchmarkMinSamples:   3,
		BenchmarkTopCompanies: 5,
	}
}

type Aggregator struct {
	vocab *vocabulary.Vocabulary
	opts  Options
}

func New(vocab *vocabulary.Vocabulary, opts Options) *Aggregator {
	return &Aggregator{vocab: vocab, opts: opts}
}

// Aggregate summarizes records in a single pass. date is stamped verbatim.
func (a *Aggregator) Aggregate(records []models.JobRecord, date string) models.MarketIntelligence {
	skills := newCounter()
	categories := newCounter()
	experience := newCounter()
	remote := newCounter()
	metros := newCounter()
	var salaries []int

	for _, r := range records {
		for _, skill := range r.SkillsTags {
			skills.add(skill)
		}
		categories.add(r.JobCategory)
		experience.add(r.ExperienceLevel)
		remote.add(r.RemoteType)
		if r.Metro != "" {
			metros.add(r.Metro)
		}
		if r.HasSalary() {
			salaries = append(salaries, *r.SalaryMax)
		}
	}

	return models.MarketIntelligence{
		Date:             date,
		TotalJobs:        len(records),
		Skills:           skills.rank(a.opts.SkillsTop),
		SkillsByCategory: a.groupSkills(skills),
		Categories:       categories.rank(0),
		ExperienceLevels: experience.rank(0),
		RemoteBreakdown:  remote.rank(0),
		TopMetros:        metros.rank(a.opts.MetrosTop),
		SalaryStats:      salaryStats(salaries),
	}
}

// groupSkills splits the full skill histogram by vocabulary category, in
// vocabulary order, with unmapped skills last under "Other".
func (a *Aggregator) groupSkills(skills *counter) models.SkillGroups {
	byCategory := make(map[string]*counter)
	for _, label := range skills.order {
		category := a.vocab.SkillCategoryOf(label)
		c, ok := byCategory[category]
		if !ok {
			c = newCounter()
			byCategory[category] = c
		}
		c.addN(label, skills.counts[label])
	}

	names := append(a.vocab.SkillCategoryNames(), vocabulary.OtherSkillCategory)
	groups := models.SkillGroups{}
	for _, name := range names {
		c, ok := byCategory[name]
		if !ok {
			continue
		}
		groups = append(groups, models.SkillGroup{Category: name, Skills: c.rank(0)})
		// a vocabulary may name its own "Other" category
		delete(byCategory, name)
	}
	return groups
}

func salaryStats(salaries []int) models.SalaryStats {
	if len(salaries) == 0 {
		return models.SalaryStats{}
	}
	sorted := append([]int(nil), salaries...)
	sort.Ints(sorted)

	total := 0
	for _, s := range sorted {
		total += s
	}
	return models.SalaryStats{
		Min:             sorted[0],
		Max:             sorted[len(sorted)-1],
		Median:          sorted[len(sorted)/2],
		Avg:             total / len(sorted),
		CountWithSalary: len(sorted),
	}
}

// Benchmarks computes salary summaries for every configured role, metro and
// experience bucket holding at least BenchmarkMinSamples salaried records.
func (a *Aggregator) Benchmarks(records []models.JobRecord) []models.SalaryBenchmark {
	var salaried []models.JobRecord
	for _, r := range records {
		if r.HasSalary() {
			salaried = append(salaried, r)
		}
	}

	benchmarks := []models.SalaryBenchmark{}
	add := func(kind string, key, slug, display string, match func(models.JobRecord) bool) {
		var bucket []models.JobRecord
		for _, r := range salaried {
			if match(r) {
				bucket = append(bucket, r)
			}
		}
		if b, ok := a.benchmark(bucket); ok {
			b.Kind, b.Key, b.Slug, b.Display = kind, key, slug, display
			benchmarks = append(benchmarks, b)
		}
	}

	for _, role := range a.vocab.Benchmarks.Roles {
		add(models.BenchmarkRole, role.Key, role.Slug, role.Display, func(r models.JobRecord) bool {
			return r.JobCategory == role.Key
		})
	}
	for _, metro := range a.vocab.Metros {
		add(models.BenchmarkMetro, metro.Name, metro.Slug, metro.Name, func(r models.JobRecord) bool {
			if metro.Name == "Remote" {
				return strings.Contains(strings.ToLower(r.RemoteType), "remote")
			}
			return r.Metro == metro.Name
		})
	}
	for _, level := range a.vocab.Benchmarks.Experience {
		add(models.BenchmarkExperience, level.Key, level.Slug, level.Display, func(r models.JobRecord) bool {
			return r.ExperienceLevel == level.Key
		})
	}
	return benchmarks
}

func (a *Aggregator) benchmark(bucket []models.JobRecord) (models.SalaryBenchmark, bool) {
	if len(bucket) == 0 || len(bucket) < a.opts.BenchmarkMinSamples {
		return models.SalaryBenchmark{}, false
	}

	maxes := make([]int, len(bucket))
	sumMax, sumMin, countMin := 0, 0, 0
	for i, r := range bucket {
		maxes[i] = *r.SalaryMax
		sumMax += *r.SalaryMax
		if r.SalaryMin != nil && *r.SalaryMin > 0 {
			sumMin += *r.SalaryMin
			countMin++
		}
	}

	b := models.SalaryBenchmark{
		SampleSize:   len(bucket),
		AvgMax:       sumMax / len(bucket),
		Median:       median(maxes),
		TopCompanies: topCompanies(bucket, a.opts.BenchmarkTopCompanies),
	}
	if countMin > 0 {
		b.AvgMin = models.IntPtr(sumMin / countMin)
	}
	return b, true
}

// median averages the two middle values when the sample size is even.
func median(values []int) int {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func topCompanies(bucket []models.JobRecord, n int) []models.CompanySalary {
	ranked := append([]models.JobRecord(nil), bucket...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].SalaryMax > *ranked[j].SalaryMax
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}

	top := make([]models.CompanySalary, len(ranked))
	for i, r := range ranked {
		top[i] = models.CompanySalary{Company: r.Company, SalaryMax: *r.SalaryMax}
	}
	return top
}

// counter is a histogram that remembers first-seen order for tie breaking.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(label string) {
	c.addN(label, 1)
}

func (c *counter) addN(label string, n int) {
	if _, ok := c.counts[label]; !ok {
		c.order = append(c.order, label)
	}
	c.counts[label] += n
}

// rank returns labels by count descending, ties in first-seen order. A
// limit of zero or less keeps every label.
func (c *counter) rank(limit int) models.FrequencyTable {
	table := make(models.FrequencyTable, len(c.order))
	for i, label := range c.order {
		table[i] = models.Frequency{Label: label, Count: c.counts[label]}
	}
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Count > table[j].Count
	})
	if limit > 0 && len(table) > limit {
		table = table[:limit]
	}
	return table
}
