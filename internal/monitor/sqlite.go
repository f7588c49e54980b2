package monitor

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS reports (
    log_id           TEXT PRIMARY KEY,
    day              TEXT NOT NULL,
    session_id       TEXT NOT NULL,
    client_timestamp TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL,
    metadata         TEXT NOT NULL DEFAULT '{}',
    frames_processed INTEGER NOT NULL DEFAULT 0,
    people_detected  INTEGER NOT NULL DEFAULT 0,
    timestamp        TEXT NOT NULL,
    server_timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_day ON reports(day);
`

// SQLiteStore keeps one row per report. The detection counters that feed
// stats are denormalized into their own columns so aggregation stays in SQL.
type SQLiteStore struct {
	db *sql.DB

	now func() time.Time // test hook
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL keeps readers cheap while appends come in.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Append(r *Report) error {
	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO reports
			(log_id, day, session_id, client_timestamp, summary, metadata,
			 frames_processed, people_detected, timestamp, server_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.LogID,
		Day(s.now()),
		r.SessionID,
		r.ClientTimestamp,
		r.Summary,
		string(metaJSON),
		r.Metadata.FramesProcessed,
		r.Metadata.PeopleDetected,
		r.Timestamp,
		r.ServerTimestamp,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDay(day string) ([]Report, error) {
	rows, err := s.db.Query(`
		SELECT log_id, session_id, client_timestamp, summary, metadata, timestamp, server_timestamp
		FROM reports WHERE day = ? ORDER BY rowid`, day)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var metaJSON string
		if err := rows.Scan(&r.LogID, &r.SessionID, &r.ClientTimestamp,
			&r.Summary, &metaJSON, &r.Timestamp, &r.ServerTimestamp); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) Stats(day string) (Stats, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(DISTINCT session_id),
		       COALESCE(SUM(frames_processed), 0),
		       COALESCE(SUM(people_detected), 0)
		FROM reports WHERE day = ?`, day)

	var st Stats
	if err := row.Scan(&st.TotalLogs, &st.UniqueSessions,
		&st.TotalFramesProcessed, &st.TotalPeopleDetected); err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
