package enricher

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/normalizer"
)

const (
	DefaultCompany  = "Unknown"
	DefaultTitle    = "Untitled Role"
	DefaultLocation = "Unspecified"
	DefaultSource   = "indeed"

	jobIDLength    = 12
	snippetLength  = 500
	datePostedSize = 10
)

// jobNamespace scopes job fingerprints so they never collide with other SHA-1 UUIDs.
var jobNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// Enricher turns raw scraped rows into canonical job records. It performs no I/O.
type Enricher struct {
	normalizer *normalizer.Normalizer
	now        func() time.Time
}

func New(n *normalizer.Normalizer, now func() time.Time) *Enricher {
	if now == nil {
		now = time.Now
	}
	return &Enricher{normalizer: n, now: now}
}

// JobID derives the short fingerprint of a posting from company, title and location.
func JobID(company, title, location string) string {
	id := uuid.NewSHA1(jobNamespace, []byte(company+"|"+title+"|"+location))
	return hex.EncodeToString(id[:])[:jobIDLength]
}

// Enrich returns the canonical record for raw. ok is false when the row has
// neither a title nor a company.
func (e *Enricher) Enrich(raw models.RawJobRecord) (record models.JobRecord, ok bool) {
	title := normalizer.CleanText(raw.Title)
	company := normalizer.CleanText(raw.Company)
	if title == "" && company == "" {
		return models.JobRecord{}, false
	}
	if title == "" {
		title = DefaultTitle
	}
	if company == "" {
		company = DefaultCompany
	}

	location := normalizer.CleanText(raw.Location)
	rawLocation := location
	if location == "" {
		location = DefaultLocation
	}

	description := strings.TrimSpace(raw.Description)
	remoteType := e.normalizer.RemoteType(rawLocation, normalizer.ParseFlag(raw.IsRemote))
	sourceURL, _ := normalizer.ResolveSourceURL(raw)

	source := strings.TrimSpace(raw.Site)
	if source == "" {
		source = DefaultSource
	}

	return models.JobRecord{
		JobID:              JobID(company, title, location),
		Title:              title,
		Company:            company,
		Location:           location,
		Metro:              e.normalizer.Metro(rawLocation),
		RemoteType:         remoteType,
		IsRemote:           remoteType == models.RemoteTypeRemote,
		SalaryMin:          normalizer.AnnualizeSalary(raw.MinAmount, raw.Interval),
		SalaryMax:          normalizer.AnnualizeSalary(raw.MaxAmount, raw.Interval),
		SalaryType:         normalizer.SalaryType(raw.Interval),
		ExperienceLevel:    e.normalizer.ExperienceLevel(title, description),
		JobCategory:        e.normalizer.Category(title),
		SkillsTags:         e.normalizer.Skills(title + "\n" + description),
		DatePosted:         normalizer.Truncate(strings.TrimSpace(raw.DatePosted), datePostedSize),
		DateScraped:        e.now().Format(time.DateOnly),
		Source:             source,
		SourceURL:          sourceURL,
		JobURL:             strings.TrimSpace(raw.JobURL),
		Description:        description,
		DescriptionSnippet: normalizer.Truncate(description, snippetLength),
	}, true
}

// EnrichAll enriches rows in input order and reports how many were skipped.
func (e *Enricher) EnrichAll(raws []models.RawJobRecord) (records []models.JobRecord, skipped int) {
	records = make([]models.JobRecord, 0, len(raws))
	for _, raw := range raws {
		record, ok := e.Enrich(raw)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}
	return records, skipped
}
