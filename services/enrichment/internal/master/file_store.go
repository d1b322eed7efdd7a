package master

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/romelikethecity/pecollective/services/enrichment/internal/atomicfile"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/errors"
	"github.com/romelikethecity/pecollective/services/enrichment/internal/models"
)

var trendHeader = []string{"date", "job_count"}

// FileStore keeps the master table as a JSON array and the trend history as
// CSV. Each write replaces the whole file atomically.
type FileStore struct {
	masterPath string
	trendPath  string
	logger     *zap.Logger
	mu         sync.Mutex
}

func NewFileStore(masterPath, trendPath string, logger *zap.Logger) *FileStore {
	return &FileStore{
		masterPath: masterPath,
		trendPath:  trendPath,
		logger:     logger,
	}
}

// Records returns the master records, or an empty table when none exist yet.
func (s *FileStore) Records(_ context.Context) ([]models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows()
	if err != nil {
		return nil, err
	}
	return s.decode(rows)
}

// rows reads the master as raw JSON rows so fields this service does not
// know about survive a rewrite.
func (s *FileStore) rows() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.masterPath)
	if os.IsNotExist(err) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("reading master %s", s.masterPath), err)
	}

	rows := []json.RawMessage{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("decoding master %s", s.masterPath), err)
	}
	return rows, nil
}

func (s *FileStore) decode(rows []json.RawMessage) ([]models.JobRecord, error) {
	records := make([]models.JobRecord, 0, len(rows))
	for i, row := range rows {
		var r models.JobRecord
		if err := json.Unmarshal(row, &r); err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("decoding master %s row %d", s.masterPath, i), err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Merge appends the novel batch records to the file. Existing rows are
// written back as read, including fields JobRecord does not carry.
func (s *FileStore) Merge(_ context.Context, batch []models.JobRecord, now time.Time) (*MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows()
	if err != nil {
		return nil, err
	}
	existing, err := s.decode(rows)
	if err != nil {
		return nil, err
	}

	merged, result := Merge(existing, batch, now)
	if len(result.Added) == 0 && fileExists(s.masterPath) {
		s.logger.Debug("master unchanged", zap.Int("total", result.Total))
		return result, nil
	}

	for _, r := range merged[len(existing):] {
		row, err := json.Marshal(r)
		if err != nil {
			return nil, errors.Internal(fmt.Sprintf("encoding record %s", r.JobID), err)
		}
		rows = append(rows, row)
	}
	if err := atomicfile.WriteJSON(s.masterPath, rows); err != nil {
		return nil, errors.Internal("writing master", err)
	}

	s.logger.Info("master updated",
		zap.String("path", s.masterPath),
		zap.Int("added", len(result.Added)),
		zap.Int("total", result.Total))
	return result, nil
}

func (s *FileStore) UpsertTrend(_ context.Context, point models.TrendPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	points, err := s.trends()
	if err != nil {
		return err
	}
	points = UpsertTrend(points, point)

	err = atomicfile.Write(s.trendPath, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(trendHeader); err != nil {
			return err
		}
		for _, p := range points {
			if err := cw.Write([]string{p.Date, strconv.Itoa(p.JobCount)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return errors.Internal("writing trend history", err)
	}
	return nil
}

func (s *FileStore) Trends(_ context.Context) ([]models.TrendPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trends()
}

func (s *FileStore) trends() ([]models.TrendPoint, error) {
	f, err := os.Open(s.trendPath)
	if os.IsNotExist(err) {
		return []models.TrendPoint{}, nil
	}
	if err != nil {
		return nil, errors.Internal(fmt.Sprintf("opening trend history %s", s.trendPath), err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("reading trend history %s", s.trendPath), err)
	}

	points := []models.TrendPoint{}
	for i, row := range rows {
		if len(row) < 2 || (i == 0 && row[0] == trendHeader[0]) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(row[1]))
		if err != nil {
			s.logger.Warn("skipping malformed trend row", zap.Int("line", i+1), zap.Error(err))
			continue
		}
		points = append(points, models.TrendPoint{Date: strings.TrimSpace(row[0]), JobCount: count})
	}
	return points, nil
}

func (s *FileStore) Close() error {
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
