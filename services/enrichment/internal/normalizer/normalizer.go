package normalizer

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/vocabulary"
)

const (
	hoursPerYear  = 2080
	hourlyCeiling = 500

	// Anything at or above this is a parse artifact, not a salary.
	maxAnnualSalary = math.MaxInt32

	// Aliases this short only match as whole words, so "la" does not fire on "Dallas".
	shortAliasLen = 3
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	dashPattern       = regexp.MustCompile(`[\x{2013}\x{2014}\x{2015}]`)

	// A standalone "I" or "II" in a lowercased title, as in "ML Engineer II".
	romanLevelPattern = regexp.MustCompile(`\bii?\b`)
)

type metroMatcher struct {
	alias string
	metro string
	word  *regexp.Regexp
}

type skillKeyword struct {
	keyword string
	skill   string
}

// Normalizer maps free-text job fields onto the canonical vocabulary. It holds
// no mutable state and is safe for concurrent use.
type Normalizer struct {
	vocab  *vocabulary.Vocabulary
	metros []metroMatcher
	skills []skillKeyword
}

func New(vocab *vocabulary.Vocabulary) *Normalizer {
	n := &Normalizer{vocab: vocab}

	for _, metro := range vocab.Metros {
		for _, alias := range metro.Aliases {
			alias = strings.ToLower(alias)
			m := metroMatcher{alias: alias, metro: metro.Name}
			if len(alias) <= shortAliasLen {
				m.word = regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
			}
			n.metros = append(n.metros, m)
		}
	}

	for _, category := range vocab.SkillCategories {
		for _, skill := range category.Skills {
			for _, keyword := range skill.Keywords {
				n.skills = append(n.skills, skillKeyword{keyword: strings.ToLower(keyword), skill: skill.Name})
			}
		}
	}

	return n
}

// Metro returns the canonical metro for a location, or "" when no alias matches.
func (n *Normalizer) Metro(location string) string {
	text := strings.ToLower(location)
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, m := range n.metros {
		if m.word != nil {
			if m.word.MatchString(text) {
				return m.metro
			}
			continue
		}
		if strings.Contains(text, m.alias) {
			return m.metro
		}
	}
	return ""
}

// RemoteType classifies a posting as remote, hybrid or onsite. An explicit
// remote flag wins over the location text.
func (n *Normalizer) RemoteType(location string, explicitRemote bool) string {
	if explicitRemote {
		return models.RemoteTypeRemote
	}
	text := strings.ToLower(location)
	if containsAny(text, n.vocab.Remote.Remote) {
		return models.RemoteTypeRemote
	}
	if containsAny(text, n.vocab.Remote.Hybrid) {
		return models.RemoteTypeHybrid
	}
	return models.RemoteTypeOnsite
}

// ExperienceLevel scans title and description; senior keywords take precedence.
// Roman numeral levels are only read from the title.
func (n *Normalizer) ExperienceLevel(title, description string) string {
	title = strings.ToLower(title)
	text := title + " " + strings.ToLower(description)
	if containsAny(text, n.vocab.Experience.Senior) {
		return models.ExperienceSenior
	}
	if containsAny(text, n.vocab.Experience.Entry) || romanLevelPattern.MatchString(title) {
		return models.ExperienceEntry
	}
	return n.vocab.Experience.Default
}

// Category returns the category of the first rule with a keyword in title.
func (n *Normalizer) Category(title string) string {
	text := strings.ToLower(title)
	if strings.TrimSpace(text) == "" {
		return n.vocab.Categories.Default
	}
	for _, rule := range n.vocab.Categories.Rules {
		if containsAny(text, rule.Keywords) {
			return rule.Category
		}
	}
	return n.vocab.Categories.Default
}

// Skills returns the sorted set of canonical skills mentioned in text.
func (n *Normalizer) Skills(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	result := []string{}

	for _, sk := range n.skills {
		if seen[sk.skill] {
			continue
		}
		if strings.Contains(lower, sk.keyword) {
			seen[sk.skill] = true
			result = append(result, sk.skill)
		}
	}

	sort.Strings(result)
	return result
}

// AnnualizeSalary converts a raw amount to an annual integer salary. Hourly
// amounts under 500 are multiplied by 2080. Non-positive or unparseable
// amounts yield nil, never zero.
func AnnualizeSalary(amount, interval string) *int {
	value, ok := parseAmount(amount)
	if !ok || value <= 0 {
		return nil
	}
	if isHourly(interval) && value < hourlyCeiling {
		value *= hoursPerYear
	}
	if value >= maxAnnualSalary {
		return nil
	}
	annual := int(value)
	if annual <= 0 {
		return nil
	}
	return &annual
}

func SalaryType(interval string) string {
	if isHourly(interval) {
		return models.SalaryTypeHourly
	}
	return models.SalaryTypeAnnual
}

// ResolveSourceURL picks the dedup key of a raw row: job_url_direct first,
// then job_url. conflict is true when both are set and disagree.
func ResolveSourceURL(raw models.RawJobRecord) (url string, conflict bool) {
	direct := strings.TrimSpace(raw.JobURLDirect)
	listing := strings.TrimSpace(raw.JobURL)
	if direct != "" {
		return direct, listing != "" && listing != direct
	}
	return listing, false
}

// ParseFlag interprets the loose boolean spellings found in scraped tables.
func ParseFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "t", "1", "yes", "y", "1.0":
		return true
	}
	return false
}

// CleanText collapses whitespace and normalizes typographic dashes.
func CleanText(text string) string {
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = dashPattern.ReplaceAllString(text, "-")
	return strings.TrimSpace(text)
}

// Truncate returns at most n runes of text.
func Truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}

func isHourly(interval string) bool {
	return strings.Contains(strings.ToLower(interval), "hour")
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
