// Package ingest maps heterogeneous scraped tables onto RawJobRecord. Column
// aliasing and missing-value tokens are resolved here, once, at the boundary.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/normalizer"
)

// Column names accepted for each raw field, in lookup order.
var (
	titleColumns       = []string{"title", "job_title", "position"}
	companyColumns     = []string{"company", "company_name", "employer"}
	locationColumns    = []string{"location", "job_location", "city"}
	descriptionColumns = []string{"description", "job_description"}
	minAmountColumns   = []string{"min_amount", "min_salary", "salary_min"}
	maxAmountColumns   = []string{"max_amount", "max_salary", "salary_max"}
	intervalColumns    = []string{"interval", "salary_interval", "pay_period"}
	datePostedColumns  = []string{"date_posted", "posted_at", "date"}
	jobURLColumns      = []string{"job_url", "url", "link", "source_url"}
	directURLColumns   = []string{"job_url_direct", "apply_url"}
	siteColumns        = []string{"site", "source"}
	isRemoteColumns    = []string{"is_remote", "remote"}
)

// Values that pandas and friends write for a missing cell.
var missingTokens = map[string]bool{
	"nan":  true,
	"none": true,
	"null": true,
	"n/a":  true,
	"na":   true,
	"<na>": true,
	"nat":  true,
}

type Row map[string]any

// Adapt maps one row onto the canonical raw shape.
func Adapt(row Row) models.RawJobRecord {
	return models.RawJobRecord{
		Title:        getString(row, titleColumns...),
		Company:      getString(row, companyColumns...),
		Location:     getString(row, locationColumns...),
		Description:  getString(row, descriptionColumns...),
		MinAmount:    getString(row, minAmountColumns...),
		MaxAmount:    getString(row, maxAmountColumns...),
		Interval:     getString(row, intervalColumns...),
		DatePosted:   getString(row, datePostedColumns...),
		JobURL:       getString(row, jobURLColumns...),
		JobURLDirect: getString(row, directURLColumns...),
		Site:         getString(row, siteColumns...),
		IsRemote:     getString(row, isRemoteColumns...),
	}
}

func AdaptAll(rows []Row) []models.RawJobRecord {
	raws := make([]models.RawJobRecord, len(rows))
	for i, row := range rows {
		raws[i] = Adapt(row)
	}
	return raws
}

// ReadFile reads a raw batch, choosing the decoder from the file extension.
func ReadFile(path string) ([]models.RawJobRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("raw batch %s", path), err)
		}
		return nil, errors.Internal(fmt.Sprintf("opening raw batch %s", path), err)
	}
	defer f.Close()

	var rows []Row
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		rows, err = ReadJSON(f)
	default:
		rows, err = ReadCSV(f)
	}
	if err != nil {
		return nil, err
	}
	return AdaptAll(rows), nil
}

// ReadCSV decodes a headered CSV table. Header names are lowercased and
// trimmed; short rows leave the trailing columns absent.
func ReadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.InvalidInput("reading csv header", err)
	}
	for i, name := range header {
		header[i] = normalizeColumn(name)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.InvalidInput("reading csv row", err)
		}

		row := make(Row, len(header))
		for i, value := range record {
			if i >= len(header) || header[i] == "" {
				continue
			}
			row[header[i]] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadJSON accepts either an array of objects or an object holding the array
// under "jobs".
func ReadJSON(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.InvalidInput("decoding json batch", err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		jobs, ok := v["jobs"].([]any)
		if !ok {
			return nil, errors.InvalidInput("json batch has no jobs array", nil)
		}
		items = jobs
	default:
		return nil, errors.InvalidInput("json batch is neither an array nor an object", nil)
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := make(Row, len(obj))
		for key, value := range obj {
			row[normalizeColumn(key)] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// LatestFile returns the most recently modified file matching pattern in dir.
// Ties are broken by name so the choice is stable.
func LatestFile(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", errors.InvalidInput(fmt.Sprintf("bad raw glob %q", pattern), err)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		candidates = append(candidates, candidate{path: path, modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return "", errors.NotFound(fmt.Sprintf("no raw batch matching %s in %s", pattern, dir), nil)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime > candidates[j].modTime
		}
		return candidates[i].path > candidates[j].path
	})
	return candidates[0].path, nil
}

// Dedup drops rows whose resolved source URL was already seen, keeping the
// first. Rows without any URL are kept; they cannot be compared. Rows with
// neither title nor company are passed through without claiming their URL,
// so the enricher skips them and a later real posting still gets in.
func Dedup(raws []models.RawJobRecord) (kept []models.RawJobRecord, dropped int) {
	seen := make(map[string]bool, len(raws))
	kept = make([]models.RawJobRecord, 0, len(raws))
	for _, raw := range raws {
		if !identifiable(raw) {
			kept = append(kept, raw)
			continue
		}
		url, _ := normalizer.ResolveSourceURL(raw)
		if url != "" {
			if seen[url] {
				dropped++
				continue
			}
			seen[url] = true
		}
		kept = append(kept, raw)
	}
	return kept, dropped
}

func identifiable(raw models.RawJobRecord) bool {
	return normalizer.CleanText(raw.Title) != "" || normalizer.CleanText(raw.Company) != ""
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.ReplaceAll(name, " ", "_")
}

// getString returns the first present, non-missing value among keys as text.
func getString(row Row, keys ...string) string {
	for _, key := range keys {
		val, ok := row[key]
		if !ok || val == nil {
			continue
		}

		var s string
		switch v := val.(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			s = strconv.Itoa(v)
		case bool:
			s = strconv.FormatBool(v)
		default:
			continue
		}

		s = strings.TrimSpace(s)
		if s == "" || missingTokens[strings.ToLower(s)] {
			continue
		}
		return s
	}
	return ""
}
