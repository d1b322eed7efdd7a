package models

// Recommendation is the summary of a live job suggested in place of an expired one.
type Recommendation struct {
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	JobCategory string `json:"job_category"`
	SalaryMax   *int   `json:"salary_max"`
}

// StalePage is a previously published job page whose posting left the live set.
type StalePage struct {
	Slug    string           `json:"slug"`
	Similar []Recommendation `json:"similar"`
}
