// Package monitor persists the cabin-monitoring summaries the mobile client
// posts after each on-device detection run. Reports are grouped by the day
// the server received them; two interchangeable backends store them (daily
// JSONL files, or a single SQLite database).
package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// dayLayout keys daily files and the day column.
const dayLayout = "2006-01-02"

// Day returns t's day key, e.g. "2026-08-26".
func Day(t time.Time) string { return t.Format(dayLayout) }

// Metadata carries the client's on-device detection counters. JSON field
// names follow the mobile client's payload.
type Metadata struct {
	FramesProcessed       int     `json:"framesProcessed"`
	PeopleDetected        int     `json:"peopleDetected"`
	ProcessingTimeSeconds float64 `json:"processingTimeSeconds"`
	VideoSource           string  `json:"videoSource"`
	InferenceTimeMs       float64 `json:"inferenceTimeMs"`
	TotalDetections       int     `json:"totalDetections"`
}

// Report is one stored monitoring summary.
type Report struct {
	LogID           string   `json:"log_id"`
	SessionID       string   `json:"session_id"`
	ClientTimestamp string   `json:"client_timestamp,omitempty"`
	Summary         string   `json:"summary"`
	Metadata        Metadata `json:"metadata"`
	Timestamp       string   `json:"timestamp"`
	ServerTimestamp string   `json:"server_timestamp"`
}

// NewReport stamps a submission with a fresh log ID and server timestamp.
// A missing client timestamp falls back to the server clock.
func NewReport(sessionID, summary string, meta Metadata, clientTS string, now time.Time) Report {
	ts := clientTS
	if ts == "" {
		ts = now.Format(time.RFC3339Nano)
	}
	return Report{
		LogID:           uuid.NewString(),
		SessionID:       sessionID,
		ClientTimestamp: clientTS,
		Summary:         summary,
		Metadata:        meta,
		Timestamp:       ts,
		ServerTimestamp: now.Format(time.RFC3339Nano),
	}
}

// Stats aggregates one day of reports.
type Stats struct {
	TotalLogs            int `json:"total_logs"`
	UniqueSessions       int `json:"unique_sessions"`
	TotalFramesProcessed int `json:"total_frames_processed"`
	TotalPeopleDetected  int `json:"total_people_detected"`
}

// Store persists monitoring reports. Implementations are safe for
// concurrent use.
type Store interface {
	// Append stores one report under the current day.
	Append(r *Report) error

	// ListDay returns the reports stored for a day key, oldest first.
	ListDay(day string) ([]Report, error)

	// Stats aggregates the reports stored for a day key.
	Stats(day string) (Stats, error)

	Close() error
}

// Open builds the configured store backend.
func Open(backend, logsDir, dbPath string) (Store, error) {
	switch backend {
	case "", "jsonl":
		return NewJSONLStore(logsDir)
	case "sqlite":
		return NewSQLiteStore(dbPath)
	default:
		return nil, fmt.Errorf("unknown monitor store %q", backend)
	}
}

// aggregate folds parsed reports into day stats.
func aggregate(reports []Report) Stats {
	st := Stats{TotalLogs: len(reports)}
	sessions := make(map[string]struct{})
	for _, r := range reports {
		sessions[r.SessionID] = struct{}{}
		st.TotalFramesProcessed += r.Metadata.FramesProcessed
		st.TotalPeopleDetected += r.Metadata.PeopleDetected
	}
	st.UniqueSessions = len(sessions)
	return st
}
