package models

import (
	"encoding/json"
	"strings"
)

const (
	RemoteTypeRemote = "remote"
	RemoteTypeHybrid = "hybrid"
	RemoteTypeOnsite = "onsite"

	ExperienceEntry  = "entry"
	ExperienceMid    = "mid"
	ExperienceSenior = "senior"

	SalaryTypeAnnual = "annual"
	SalaryTypeHourly = "hourly"
)

// RawJobRecord is one scraped row after column aliasing. Every field is the
// untouched source text and may be empty.
type RawJobRecord struct {
	Title        string `json:"title"`
	Company      string `json:"company"`
	Location     string `json:"location"`
	Description  string `json:"description"`
	MinAmount    string `json:"min_amount"`
	MaxAmount    string `json:"max_amount"`
	Interval     string `json:"interval"`
	DatePosted   string `json:"date_posted"`
	JobURL       string `json:"job_url"`
	JobURLDirect string `json:"job_url_direct"`
	Site         string `json:"site"`
	IsRemote     string `json:"is_remote"`
}

// JobRecord is the canonical enriched job consumed by every downstream page generator.
type JobRecord struct {
	JobID              string   `json:"job_id"`
	Title              string   `json:"title"`
	Company            string   `json:"company"`
	Location           string   `json:"location"`
	Metro              string   `json:"metro,omitempty"`
	RemoteType         string   `json:"remote_type"`
	IsRemote           bool     `json:"is_remote"`
	SalaryMin          *int     `json:"salary_min"`
	SalaryMax          *int     `json:"salary_max"`
	SalaryType         string   `json:"salary_type"`
	ExperienceLevel    string   `json:"experience_level"`
	JobCategory        string   `json:"job_category"`
	SkillsTags         []string `json:"skills_tags"`
	DatePosted         string   `json:"date_posted,omitempty"`
	DateScraped        string   `json:"date_scraped"`
	Source             string   `json:"source"`
	SourceURL          string   `json:"source_url"`
	JobURL             string   `json:"job_url,omitempty"`
	Description        string   `json:"description,omitempty"`
	DescriptionSnippet string   `json:"description_snippet,omitempty"`
	ImportDate         string   `json:"import_date,omitempty"`
	ImportWeek         string   `json:"import_week,omitempty"`
}

// UnmarshalJSON treats a zero or negative salary bound as undisclosed, so
// records written by older tools read back the same as freshly enriched ones.
func (r *JobRecord) UnmarshalJSON(data []byte) error {
	type plain JobRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = JobRecord(p)
	r.SalaryMin = positive(r.SalaryMin)
	r.SalaryMax = positive(r.SalaryMax)
	return nil
}

func positive(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

// HasSalary reports whether a positive salary_max is disclosed.
func (r JobRecord) HasSalary() bool {
	return r.SalaryMax != nil && *r.SalaryMax > 0
}

// Remote reports whether the job can be done remotely, looking at the
// classification first and the raw location last.
func (r JobRecord) Remote() bool {
	if r.RemoteType == RemoteTypeRemote || r.IsRemote {
		return true
	}
	return strings.Contains(strings.ToLower(r.Location), "remote")
}

// TrendPoint is one row of the job count history.
type TrendPoint struct {
	Date     string `json:"date"`
	JobCount int    `json:"job_count"`
}

// JobSet is the live record set as cached between runs.
type JobSet []JobRecord

func (s JobSet) MarshalBinary() ([]byte, error) {
	return json.Marshal([]JobRecord(s))
}

func (s *JobSet) UnmarshalBinary(data []byte) error {
	var records []JobRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = records
	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
