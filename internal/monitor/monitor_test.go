package monitor

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

var testNow = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

// testStores builds one of each backend pinned to testNow.
func testStores(t *testing.T) map[string]Store {
	t.Helper()

	j, err := NewJSONLStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONLStore failed: %v", err)
	}
	j.now = func() time.Time { return testNow }

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "reports.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	s.now = func() time.Time { return testNow }

	t.Cleanup(func() {
		j.Close()
		s.Close()
	})
	return map[string]Store{"jsonl": j, "sqlite": s}
}

func report(id, sess string, frames, people int) *Report {
	return &Report{
		LogID:     id,
		SessionID: sess,
		Summary:   "cabin quiet, driver attentive",
		Metadata: Metadata{
			FramesProcessed:       frames,
			PeopleDetected:        people,
			ProcessingTimeSeconds: 1.5,
			VideoSource:           "front_cam",
			InferenceTimeMs:       42.5,
			TotalDetections:       people,
		},
		Timestamp:       "2026-08-25T10:00:00Z",
		ServerTimestamp: "2026-08-25T10:00:01Z",
	}
}

func TestStore_AppendListStats(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, r := range []*Report{
				report("log-1", "sess-a", 100, 2),
				report("log-2", "sess-a", 50, 1),
				report("log-3", "sess-b", 25, 0),
			} {
				if err := store.Append(r); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			reports, err := store.ListDay(Day(testNow))
			if err != nil {
				t.Fatalf("ListDay failed: %v", err)
			}
			if len(reports) != 3 {
				t.Fatalf("expected 3 reports, got %d", len(reports))
			}
			for i, wantID := range []string{"log-1", "log-2", "log-3"} {
				if reports[i].LogID != wantID {
					t.Errorf("report %d: expected %s, got %s", i, wantID, reports[i].LogID)
				}
			}
			if want := report("log-1", "sess-a", 100, 2); !reflect.DeepEqual(reports[0], *want) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", reports[0], *want)
			}

			stats, err := store.Stats(Day(testNow))
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			want := Stats{TotalLogs: 3, UniqueSessions: 2, TotalFramesProcessed: 175, TotalPeopleDetected: 3}
			if stats != want {
				t.Errorf("expected stats %+v, got %+v", want, stats)
			}
		})
	}
}

func TestStore_EmptyDay(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			reports, err := store.ListDay("1999-01-01")
			if err != nil {
				t.Fatalf("ListDay failed: %v", err)
			}
			if len(reports) != 0 {
				t.Errorf("expected no reports, got %d", len(reports))
			}

			stats, err := store.Stats("1999-01-01")
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if stats != (Stats{}) {
				t.Errorf("expected zero stats, got %+v", stats)
			}
		})
	}
}

func TestJSONLStore_SkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatalf("NewJSONLStore failed: %v", err)
	}
	s.now = func() time.Time { return testNow }

	if err := s.Append(report("log-1", "sess-a", 10, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	path := filepath.Join(dir, "monitoring_logs_"+Day(testNow)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	if _, err := f.WriteString("{not json\n\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	if err := s.Append(report("log-2", "sess-a", 20, 0)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	reports, err := s.ListDay(Day(testNow))
	if err != nil {
		t.Fatalf("ListDay failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports around the corrupt line, got %d", len(reports))
	}
	if reports[1].LogID != "log-2" {
		t.Errorf("expected log-2 last, got %s", reports[1].LogID)
	}
}

func TestJSONLStore_RotatesDaily(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONLStore(dir)
	if err != nil {
		t.Fatalf("NewJSONLStore failed: %v", err)
	}

	now := testNow
	s.now = func() time.Time { return now }

	if err := s.Append(report("log-1", "sess-a", 10, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	now = testNow.Add(24 * time.Hour)
	if err := s.Append(report("log-2", "sess-a", 20, 2)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	for day, wantID := range map[string]string{
		"2026-08-25": "log-1",
		"2026-08-26": "log-2",
	} {
		if _, err := os.Stat(filepath.Join(dir, "monitoring_logs_"+day+".jsonl")); err != nil {
			t.Errorf("expected file for %s: %v", day, err)
		}
		reports, err := s.ListDay(day)
		if err != nil {
			t.Fatalf("ListDay(%s) failed: %v", day, err)
		}
		if len(reports) != 1 || reports[0].LogID != wantID {
			t.Errorf("day %s: expected [%s], got %+v", day, wantID, reports)
		}
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	s.now = func() time.Time { return testNow }
	if err := s.Append(report("log-1", "sess-a", 10, 1)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	reports, err := s.ListDay(Day(testNow))
	if err != nil {
		t.Fatalf("ListDay failed: %v", err)
	}
	if len(reports) != 1 || reports[0].LogID != "log-1" {
		t.Errorf("expected persisted report, got %+v", reports)
	}
}

func TestNewReport(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 30, 0, 0, time.UTC)

	r := NewReport("sess-a", "all clear", Metadata{FramesProcessed: 5}, "", now)
	if r.LogID == "" {
		t.Error("expected a log ID")
	}
	if r.Timestamp != now.Format(time.RFC3339Nano) {
		t.Errorf("expected server clock fallback, got %q", r.Timestamp)
	}
	if r.ServerTimestamp != now.Format(time.RFC3339Nano) {
		t.Errorf("unexpected server timestamp %q", r.ServerTimestamp)
	}

	r2 := NewReport("sess-a", "all clear", Metadata{}, "2026-08-25T12:00:00Z", now)
	if r2.Timestamp != "2026-08-25T12:00:00Z" {
		t.Errorf("expected client timestamp echoed, got %q", r2.Timestamp)
	}
	if r2.ClientTimestamp != "2026-08-25T12:00:00Z" {
		t.Errorf("expected client timestamp recorded, got %q", r2.ClientTimestamp)
	}
	if r2.LogID == r.LogID {
		t.Error("expected unique log IDs")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{"jsonl", false},
		{"", false},
		{"sqlite", false},
		{"postgres", true},
	}
	for _, tt := range tests {
		store, err := Open(tt.backend, dir, filepath.Join(dir, "reports.db"))
		if tt.wantErr {
			if err == nil {
				t.Errorf("Open(%q): expected error", tt.backend)
			}
			continue
		}
		if err != nil {
			t.Errorf("Open(%q) failed: %v", tt.backend, err)
			continue
		}
		store.Close()
	}
}
