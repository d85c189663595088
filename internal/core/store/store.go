// Package store persists derived session records to SQLite so listings
// survive restarts without re-parsing every transcript. It is an index,
// not a source of truth: any row that fails to load is dropped and
// recomputed from the transcript on the next sync.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/ccdeck/ccdeck/internal/core/models"
)

// Store wraps the SQLite session index.
type Store struct {
	conn   *sql.DB
	logger *log.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	project_path     TEXT NOT NULL DEFAULT '',
	started_at       TIMESTAMP,
	last_activity_at TIMESTAMP,
	message_count    INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'idle',
	source           TEXT NOT NULL DEFAULT 'local',
	preview          TEXT NOT NULL DEFAULT '',
	indexed_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(last_activity_at DESC);
`

// Open creates or opens the index at dbPath, initializing the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize index schema: %w", err)
	}

	return &Store{conn: conn, logger: log.Default()}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Upsert writes one session record, replacing any previous row.
func (s *Store) Upsert(rec models.SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refusing to index session: %w", err)
	}

	_, err := s.conn.Exec(`
		INSERT INTO sessions (id, project_path, started_at, last_activity_at,
			message_count, status, source, preview, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			project_path = excluded.project_path,
			started_at = excluded.started_at,
			last_activity_at = excluded.last_activity_at,
			message_count = excluded.message_count,
			status = excluded.status,
			source = excluded.source,
			preview = excluded.preview,
			indexed_at = CURRENT_TIMESTAMP
	`, rec.ID, rec.ProjectPath, rec.StartedAt, rec.LastActivityAt,
		rec.MessageCount, string(rec.Status), string(rec.Source), rec.Preview)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads one session record. A row that cannot be loaded cleanly is a
// cache miss, not an error: the row is evicted so the caller recomputes
// from the transcript.
func (s *Store) Get(id string) (models.SessionRecord, bool, error) {
	row := s.conn.QueryRow(`
		SELECT id, project_path, started_at, last_activity_at,
			message_count, status, source, preview
		FROM sessions WHERE id = ?
	`, id)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return models.SessionRecord{}, false, nil
	}
	if err != nil {
		s.logger.Warn("dropping unreadable index row", "session", id, "err", err)
		if _, derr := s.conn.Exec(`DELETE FROM sessions WHERE id = ?`, id); derr != nil {
			return models.SessionRecord{}, false, fmt.Errorf("evict corrupt row %s: %w", id, derr)
		}
		return models.SessionRecord{}, false, nil
	}
	return rec, true, nil
}

// List returns indexed sessions, most recent activity first. Unreadable
// rows are skipped and logged; they get rebuilt on the next sync.
func (s *Store) List(limit int) ([]models.SessionRecord, error) {
	rows, err := s.conn.Query(`
		SELECT id, project_path, started_at, last_activity_at,
			message_count, status, source, preview
		FROM sessions
		ORDER BY last_activity_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []models.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			s.logger.Warn("skipping unreadable index row", "err", err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes one session from the index.
func (s *Store) Delete(id string) error {
	_, err := s.conn.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// scanRecord reads one row and validates the result, so a corrupted row
// surfaces as an error the callers translate into a miss.
func scanRecord(scan func(dest ...any) error) (models.SessionRecord, error) {
	var rec models.SessionRecord
	var statusStr, sourceStr string
	var startedAt, lastActivityAt sql.NullTime

	err := scan(&rec.ID, &rec.ProjectPath, &startedAt, &lastActivityAt,
		&rec.MessageCount, &statusStr, &sourceStr, &rec.Preview)
	if err != nil {
		return models.SessionRecord{}, err
	}

	rec.StartedAt = startedAt.Time
	rec.LastActivityAt = lastActivityAt.Time
	rec.Status = models.Status(statusStr)
	rec.Source = models.Source(sourceStr)
	if err := rec.Validate(); err != nil {
		return models.SessionRecord{}, err
	}
	return rec, nil
}
