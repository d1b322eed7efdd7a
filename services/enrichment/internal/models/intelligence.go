package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Frequency is one label of a ranked histogram.
type Frequency struct {
	Label string
	Count int
}

// FrequencyTable is a ranked histogram. It encodes as a JSON object whose key
// order is the rank order.
type FrequencyTable []Frequency

// Get returns the count recorded for label.
func (t FrequencyTable) Get(label string) (int, bool) {
	for _, f := range t {
		if f.Label == label {
			return f.Count, true
		}
	}
	return 0, false
}

// Labels returns the labels in rank order.
func (t FrequencyTable) Labels() []string {
	labels := make([]string, len(t))
	for i, f := range t {
		labels[i] = f.Label
	}
	return labels
}

func (t FrequencyTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(f.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *FrequencyTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("frequency table: %w", err)
	}

	table := FrequencyTable{}
	for dec.More() {
		label, err := readKey(dec)
		if err != nil {
			return fmt.Errorf("frequency table: %w", err)
		}
		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("frequency table %q: %w", label, err)
		}
		table = append(table, Frequency{Label: label, Count: count})
	}
	*t = table
	return nil
}

// SkillGroup is the skill histogram restricted to one skill category.
type SkillGroup struct {
	Category string
	Skills   FrequencyTable
}

// SkillGroups encodes as an ordered JSON object of category -> histogram.
type SkillGroups []SkillGroup

func (g SkillGroups) Get(category string) (FrequencyTable, bool) {
	for _, group := range g {
		if group.Category == category {
			return group.Skills, true
		}
	}
	return nil, false
}

func (g SkillGroups) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, group := range g {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(group.Category)
		if err != nil {
			return nil, err
		}
		skills, err := group.Skills.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(skills)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (g *SkillGroups) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("skill groups: %w", err)
	}

	groups := SkillGroups{}
	for dec.More() {
		category, err := readKey(dec)
		if err != nil {
			return fmt.Errorf("skill groups: %w", err)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("skill group %q: %w", category, err)
		}
		var skills FrequencyTable
		if err := skills.UnmarshalJSON(raw); err != nil {
			return err
		}
		groups = append(groups, SkillGroup{Category: category, Skills: skills})
	}
	*g = groups
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return key, nil
}

// SalaryStats summarizes salary_max over the records that disclose one. The
// zero value encodes as an empty object and means "no salary data".
type SalaryStats struct {
	Min             int `json:"min,omitempty"`
	Max             int `json:"max,omitempty"`
	Median          int `json:"median,omitempty"`
	Avg             int `json:"avg,omitempty"`
	CountWithSalary int `json:"count_with_salary,omitempty"`
}

func (s SalaryStats) Empty() bool {
	return s.CountWithSalary == 0
}

type MarketIntelligence struct {
	Date             string         `json:"date"`
	TotalJobs        int            `json:"total_jobs"`
	Skills           FrequencyTable `json:"skills"`
	SkillsByCategory SkillGroups    `json:"skills_by_category"`
	Categories       FrequencyTable `json:"categories"`
	ExperienceLevels FrequencyTable `json:"experience_levels"`
	RemoteBreakdown  FrequencyTable `json:"remote_breakdown"`
	TopMetros        FrequencyTable `json:"top_metros"`
	SalaryStats      SalaryStats    `json:"salary_stats"`
}

func (m MarketIntelligence) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

func (m *MarketIntelligence) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, m)
}

const (
	BenchmarkRole       = "role"
	BenchmarkMetro      = "metro"
	BenchmarkExperience = "experience"
)

type CompanySalary struct {
	Company   string `json:"company"`
	SalaryMax int    `json:"salary_max"`
}

// SalaryBenchmark is the salary summary of one role, metro or experience bucket.
type SalaryBenchmark struct {
	Kind         string          `json:"kind"`
	Key          string          `json:"key"`
	Slug         string          `json:"slug"`
	Display      string          `json:"display"`
	SampleSize   int             `json:"sample_size"`
	AvgMin       *int            `json:"avg_min"`
	AvgMax       int             `json:"avg_max"`
	Median       int             `json:"median"`
	TopCompanies []CompanySalary `json:"top_companies"`
}
