// Package recommender builds job page slugs and suggests live jobs for pages
// whose posting has expired.
package recommender

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

const (
	maxSlugLength = 50
	minSlugLength = 5
	hashLength    = 6

	companyWeight = 50
	roleWeight    = 30
	nicheWeight   = 25
	remoteWeight  = 10
	salaryWeight  = 5
)

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpace    = regexp.MustCompile(`[\s_]+`)
	slugDashRuns = regexp.MustCompile(`-+`)
)

// MakeSlug lowercases text, drops everything but letters, digits and dashes,
// and caps the result at 50 characters.
func MakeSlug(text string) string {
	text = strings.ToLower(text)
	text = slugStrip.ReplaceAllString(text, "")
	text = slugSpace.ReplaceAllString(text, "-")
	text = slugDashRuns.ReplaceAllString(text, "-")
	text = strings.Trim(text, "-")
	if len(text) > maxSlugLength {
		text = text[:maxSlugLength]
	}
	return text
}

// JobSlug returns the page slug of a record: company and title slugs joined,
// or job-<idx> when that is too short, followed by a short content hash.
func JobSlug(r models.JobRecord, idx int) string {
	slug := MakeSlug(r.Company) + "-" + MakeSlug(r.Title)
	if len(slug) < minSlugLength {
		slug = fmt.Sprintf("job-%d", idx)
	}
	sum := md5.Sum([]byte(r.Company + r.Title + r.Location))
	return slug + "-" + hex.EncodeToString(sum[:])[:hashLength]
}

// JobSlugs returns the slug of every record, in order.
func JobSlugs(records []models.JobRecord) []string {
	slugs := make([]string, len(records))
	for i, r := range records {
		slugs[i] = JobSlug(r, i)
	}
	return slugs
}

// StaleSlugs returns the slugs in previous that are missing from current, sorted.
func StaleSlugs(previous, current []string) []string {
	live := make(map[string]bool, len(current))
	for _, s := range current {
		live[s] = true
	}

	seen := make(map[string]bool)
	stale := []string{}
	for _, s := range previous {
		s = strings.TrimSpace(s)
		if s == "" || live[s] || seen[s] {
			continue
		}
		seen[s] = true
		stale = append(stale, s)
	}
	sort.Strings(stale)
	return stale
}

// Score rates how well a live record matches the text of a stale slug.
func Score(slugText string, r models.JobRecord) int {
	score := 0
	category := strings.ToLower(r.JobCategory)

	if company := MakeSlug(r.Company); company != "" && strings.Contains(slugText, company) {
		score += companyWeight
	}

	if strings.Contains(slugText, "prompt") && strings.Contains(category, "prompt") {
		score += roleWeight
	}
	if strings.Contains(slugText, "ml-engineer") || strings.Contains(slugText, "machine-learning") {
		if strings.Contains(category, "ml") || strings.Contains(category, "machine learning") {
			score += roleWeight
		}
	}
	if strings.Contains(slugText, "llm") && strings.Contains(category, "llm") {
		score += roleWeight
	}
	if strings.Contains(slugText, "mlops") && strings.Contains(category, "mlops") {
		score += roleWeight
	}
	if strings.Contains(slugText, "research") && strings.Contains(category, "research") {
		score += nicheWeight
	}
	if strings.Contains(slugText, "agent") && strings.Contains(category, "agent") {
		score += nicheWeight
	}

	if strings.Contains(slugText, "remote") && r.Remote() {
		score += remoteWeight
	}
	if r.HasSalary() {
		score += salaryWeight
	}
	return score
}

// FindSimilar returns up to k live records ranked by Score against the stale
// slug, ties in input order. A slug with no dash at all falls back to the
// first k records, so the result is never empty when live is not.
func FindSimilar(staleSlug string, live []models.JobRecord, k int) []models.JobRecord {
	ranked := rank(staleSlug, live, k)
	similar := make([]models.JobRecord, len(ranked))
	for i, idx := range ranked {
		similar[i] = live[idx]
	}
	return similar
}

// Recommend is FindSimilar with every match summarised under its own page slug.
func Recommend(staleSlug string, live []models.JobRecord, k int) []models.Recommendation {
	ranked := rank(staleSlug, live, k)
	recs := make([]models.Recommendation, len(ranked))
	for i, idx := range ranked {
		r := live[idx]
		recs[i] = models.Recommendation{
			Slug:        JobSlug(r, idx),
			Title:       r.Title,
			Company:     r.Company,
			Location:    r.Location,
			JobCategory: r.JobCategory,
			SalaryMax:   r.SalaryMax,
		}
	}
	return recs
}

// rank returns the indexes of the k best matches.
func rank(staleSlug string, live []models.JobRecord, k int) []int {
	if k <= 0 || len(live) == 0 {
		return []int{}
	}
	if k > len(live) {
		k = len(live)
	}

	order := make([]int, len(live))
	for i := range order {
		order[i] = i
	}

	cut := strings.LastIndex(staleSlug, "-")
	if cut < 0 {
		return order[:k]
	}
	slugText := strings.ToLower(staleSlug[:cut])

	scores := make([]int, len(live))
	for i, r := range live {
		scores[i] = Score(slugText, r)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order[:k]
}
