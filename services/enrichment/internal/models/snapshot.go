package models

import "encoding/json"

// Cache keys of the snapshot a run leaves for the query surface.
const (
	SnapshotLiveJobs           = "jobs:live"
	SnapshotMarketIntelligence = "intel:latest"
	SnapshotBenchmarks         = "benchmarks:latest"
)

type BenchmarkSet []SalaryBenchmark

func (s BenchmarkSet) MarshalBinary() ([]byte, error) {
	return json.Marshal([]SalaryBenchmark(s))
}

func (s *BenchmarkSet) UnmarshalBinary(data []byte) error {
	var benchmarks []SalaryBenchmark
	if err := json.Unmarshal(data, &benchmarks); err != nil {
		return err
	}
	*s = benchmarks
	return nil
}

// Filter returns the benchmarks of one kind, or all of them when kind is empty.
func (s BenchmarkSet) Filter(kind string) BenchmarkSet {
	if kind == "" {
		return s
	}
	filtered := BenchmarkSet{}
	for _, b := range s {
		if b.Kind == kind {
			filtered = append(filtered, b)
		}
	}
	return filtered
}
