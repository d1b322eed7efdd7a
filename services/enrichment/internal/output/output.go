// Package output writes the files consumed by the page generators and reads
// back the ones a later run depends on.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/atomicfile"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

const (
	JobsFile               = "jobs.json"
	MarketIntelligenceFile = "market_intelligence.json"
	BenchmarksFile         = "salary_benchmarks.json"
	StaleJobsFile          = "stale_jobs.json"
	SlugIndexFile          = "job_slugs.txt"
)

var csvHeader = []string{
	"job_id", "title", "company", "location", "metro", "remote_type", "is_remote",
	"salary_min", "salary_max", "salary_type", "experience_level", "job_category",
	"skills_tags", "date_posted", "date_scraped", "source", "source_url", "job_url",
	"description", "description_snippet",
}

// JobsDocument is the layout of jobs.json.
type JobsDocument struct {
	LastUpdated string             `json:"last_updated"`
	TotalJobs   int                `json:"total_jobs"`
	Jobs        []models.JobRecord `json:"jobs"`
}

type BenchmarksDocument struct {
	LastUpdated string                   `json:"last_updated"`
	Benchmarks  []models.SalaryBenchmark `json:"benchmarks"`
}

type StaleDocument struct {
	LastUpdated string             `json:"last_updated"`
	Pages       []models.StalePage `json:"pages"`
}

// CSVFileName returns the dated name of the enriched CSV export.
func CSVFileName(now time.Time) string {
	return "ai_jobs_" + now.Format("20060102") + ".csv"
}

// Writer places every output file in one directory.
type Writer struct {
	dir    string
	logger *zap.Logger
}

func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

func (w *Writer) Dir() string {
	return w.dir
}

func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *Writer) WriteJobs(records []models.JobRecord, now time.Time) (string, error) {
	if records == nil {
		records = []models.JobRecord{}
	}
	doc := JobsDocument{
		LastUpdated: now.Format(time.DateOnly),
		TotalJobs:   len(records),
		Jobs:        records,
	}
	return w.writeJSON(JobsFile, doc)
}

// WriteCSV writes the flat export; skills are comma-joined and absent
// salaries are empty cells.
func (w *Writer) WriteCSV(records []models.JobRecord, now time.Time) (string, error) {
	path := w.Path(CSVFileName(now))
	err := atomicfile.Write(path, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write(csvRow(r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return "", errors.Internal("writing csv export", err)
	}
	w.logger.Info("output written", zap.String("path", path), zap.Int("rows", len(records)))
	return path, nil
}

func (w *Writer) WriteMarketIntelligence(intel models.MarketIntelligence) (string, error) {
	return w.writeJSON(MarketIntelligenceFile, intel)
}

func (w *Writer) WriteBenchmarks(benchmarks []models.SalaryBenchmark, now time.Time) (string, error) {
	if benchmarks == nil {
		benchmarks = []models.SalaryBenchmark{}
	}
	return w.writeJSON(BenchmarksFile, BenchmarksDocument{
		LastUpdated: now.Format(time.DateOnly),
		Benchmarks:  benchmarks,
	})
}

func (w *Writer) WriteStale(pages []models.StalePage, now time.Time) (string, error) {
	if pages == nil {
		pages = []models.StalePage{}
	}
	return w.writeJSON(StaleJobsFile, StaleDocument{
		LastUpdated: now.Format(time.DateOnly),
		Pages:       pages,
	})
}

// WriteSlugs writes one slug per line.
func (w *Writer) WriteSlugs(slugs []string) (string, error) {
	path := w.Path(SlugIndexFile)
	err := atomicfile.Write(path, func(out io.Writer) error {
		_, err := io.WriteString(out, strings.Join(slugs, "\n"))
		return err
	})
	if err != nil {
		return "", errors.Internal("writing slug index", err)
	}
	return path, nil
}

func (w *Writer) writeJSON(name string, v any) (string, error) {
	path := w.Path(name)
	if err := atomicfile.WriteJSON(path, v); err != nil {
		return "", errors.Internal(fmt.Sprintf("writing %s", name), err)
	}
	w.logger.Info("output written", zap.String("path", path))
	return path, nil
}

func csvRow(r models.JobRecord) []string {
	return []string{
		r.JobID,
		r.Title,
		r.Company,
		r.Location,
		r.Metro,
		r.RemoteType,
		strconv.FormatBool(r.IsRemote),
		formatSalary(r.SalaryMin),
		formatSalary(r.SalaryMax),
		r.SalaryType,
		r.ExperienceLevel,
		r.JobCategory,
		strings.Join(r.SkillsTags, ","),
		r.DatePosted,
		r.DateScraped,
		r.Source,
		r.SourceURL,
		r.JobURL,
		r.Description,
		r.DescriptionSnippet,
	}
}

func formatSalary(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// ReadJobs loads a jobs.json document. A missing file is NOT_FOUND.
func ReadJobs(path string) (*JobsDocument, error) {
	var doc JobsDocument
	if err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	if doc.Jobs == nil {
		doc.Jobs = []models.JobRecord{}
	}
	return &doc, nil
}

func ReadMarketIntelligence(path string) (*models.MarketIntelligence, error) {
	var intel models.MarketIntelligence
	if err := readJSON(path, &intel); err != nil {
		return nil, err
	}
	return &intel, nil
}

func ReadBenchmarks(path string) (*BenchmarksDocument, error) {
	var doc BenchmarksDocument
	if err := readJSON(path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ReadSlugs loads the slug index; a missing index yields no slugs.
func ReadSlugs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("reading slug index %s", path), err)
	}

	slugs := []string{}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			slugs = append(slugs, line)
		}
	}
	return slugs, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound(fmt.Sprintf("%s does not exist", path), err)
		}
		return errors.Internal(fmt.Sprintf("reading %s", path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.InvalidInput(fmt.Sprintf("decoding %s", path), err)
	}
	return nil
}
