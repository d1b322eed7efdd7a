// Package master maintains the append-only store of every job ever seen,
// deduplicated by posting URL, and the job count history beside it.
package master

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

// MergeResult describes what one batch contributed to the master store.
type MergeResult struct {
	Added      []models.JobRecord
	Duplicates int
	Unkeyed    int
	Total      int
}

// Store persists the master table and the trend side-table.
type Store interface {
	Merge(ctx context.Context, batch []models.JobRecord, now time.Time) (*MergeResult, error)
	UpsertTrend(ctx context.Context, point models.TrendPoint) error
	Trends(ctx context.Context) ([]models.TrendPoint, error)
	Records(ctx context.Context) ([]models.JobRecord, error)
	Close() error
}

// KeySet holds the dedup keys already present in a store.
type KeySet map[string]struct{}

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// Key returns the dedup key of a record: source_url, then job_url. It never
// falls back to job_id because re-scraped text may change the fingerprint.
func Key(r models.JobRecord) string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return r.JobURL
}

func Keys(records []models.JobRecord) KeySet {
	set := make(KeySet, len(records))
	for _, r := range records {
		if key := Key(r); key != "" {
			set.Add(key)
		}
	}
	return set
}

// ImportDate formats now as YYYY-MM-DD.
func ImportDate(now time.Time) string {
	return now.Format(time.DateOnly)
}

// ImportWeek formats the ISO week of now as YYYY-Www.
func ImportWeek(now time.Time) string {
	year, week := now.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// NewRecords selects the batch records whose key is absent from existing. The
// first occurrence of a key within the batch wins. Selected records are
// tagged with the import date and week of now.
func NewRecords(existing KeySet, batch []models.JobRecord, now time.Time) *MergeResult {
	result := &MergeResult{Added: []models.JobRecord{}}
	seen := make(KeySet, len(batch))
	date, week := ImportDate(now), ImportWeek(now)

	for _, r := range batch {
		key := Key(r)
		switch {
		case key == "":
			result.Unkeyed++
		case existing.Has(key) || seen.Has(key):
			result.Duplicates++
		default:
			seen.Add(key)
			r.ImportDate = date
			r.ImportWeek = week
			result.Added = append(result.Added, r)
		}
	}
	return result
}

// Merge appends the novel records of batch to master. Merging the same batch
// twice yields the same content as merging it once.
func Merge(master, batch []models.JobRecord, now time.Time) ([]models.JobRecord, *MergeResult) {
	result := NewRecords(Keys(master), batch, now)

	merged := make([]models.JobRecord, 0, len(master)+len(result.Added))
	merged = append(merged, master...)
	merged = append(merged, result.Added...)
	result.Total = len(merged)
	return merged, result
}

// UpsertTrend replaces the point for the same date or appends a new one, and
// returns the points ordered by date.
func UpsertTrend(points []models.TrendPoint, point models.TrendPoint) []models.TrendPoint {
	out := make([]models.TrendPoint, 0, len(points)+1)
	replaced := false
	for _, p := range points {
		if p.Date == point.Date {
			if !replaced {
				out = append(out, point)
				replaced = true
			}
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, point)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}
