package monitor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLStore appends reports to daily files named
// monitoring_logs_YYYY-MM-DD.jsonl, one JSON object per line. The layout
// matches what the mobile client's tooling already reads.
type JSONLStore struct {
	mu  sync.Mutex
	dir string

	now func() time.Time // test hook
}

// NewJSONLStore creates the logs directory if needed.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs directory %s: %w", dir, err)
	}
	return &JSONLStore{dir: dir, now: time.Now}, nil
}

func (s *JSONLStore) fileFor(day string) string {
	return filepath.Join(s.dir, "monitoring_logs_"+day+".jsonl")
}

// Append writes r to today's file. The file rotates daily, so each append
// opens it fresh.
func (s *JSONLStore) Append(r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.fileFor(Day(s.now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ListDay scans a day's file. Corrupt lines are skipped rather than failing
// the whole read. A day with no file is an empty day.
func (s *JSONLStore) ListDay(day string) ([]Report, error) {
	f, err := os.Open(s.fileFor(day))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var reports []Report
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var r Report
		if json.Unmarshal(scanner.Bytes(), &r) == nil {
			reports = append(reports, r)
		}
	}
	return reports, scanner.Err()
}

func (s *JSONLStore) Stats(day string) (Stats, error) {
	reports, err := s.ListDay(day)
	if err != nil {
		return Stats{}, err
	}
	return aggregate(reports), nil
}

func (s *JSONLStore) Close() error { return nil }
