// Package history provides SQLite-backed persistence for finished
// recording sessions.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keytape/keytape/internal/session"
)

// Entry status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry is one finished session as kept in the history database.
type Entry struct {
	SessionID    string
	StartedAt    time.Time
	Duration     time.Duration
	ChunkCount   int
	ArtifactPath string
	Status       string
	Error        string
}

// FromResult converts a finished session into a history entry. The
// session's start time is embedded in its ID; a malformed ID falls back to
// now minus the run time.
func FromResult(r session.Result) Entry {
	e := Entry{
		SessionID:    r.SessionID,
		StartedAt:    startedFromID(r.SessionID, r.Duration),
		Duration:     r.Duration,
		ChunkCount:   len(r.ChunkPaths),
		ArtifactPath: r.ArtifactPath,
		Status:       StatusCompleted,
	}
	if r.Err != nil {
		e.Status = StatusFailed
		e.Error = r.Err.Error()
	}
	return e
}

func startedFromID(id string, elapsed time.Duration) time.Time {
	if len(id) >= 15 {
		if ts, err := time.ParseInLocation("20060102_150405", id[:15], time.Local); err == nil {
			return ts
		}
	}
	return time.Now().Add(-elapsed)
}

// Store provides access to the session history database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at dbPath and runs
// migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL keeps readers out of the writer's way.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		duration_secs REAL NOT NULL,
		chunk_count INTEGER NOT NULL,
		artifact_path TEXT,
		status TEXT NOT NULL,
		error TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts a finished session.
func (s *Store) Record(e Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started_at, duration_secs, chunk_count, artifact_path, status, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.StartedAt.Unix(), e.Duration.Seconds(), e.ChunkCount,
		e.ArtifactPath, e.Status, e.Error, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// List returns the most recent sessions, newest first. A limit of 0 or
// less returns everything.
func (s *Store) List(limit int) ([]Entry, error) {
	query := `SELECT id, started_at, duration_secs, chunk_count, artifact_path, status, error
		  FROM sessions ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get retrieves a session by ID. A missing session returns (nil, nil).
func (s *Store) Get(sessionID string) (*Entry, error) {
	row := s.db.QueryRow(
		`SELECT id, started_at, duration_secs, chunk_count, artifact_path, status, error
		 FROM sessions WHERE id = ?`,
		sessionID,
	)
	e, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes a session from the history.
func (s *Store) Delete(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// Prune deletes sessions started before cutoff and reports how many rows
// went away.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE started_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func scanEntry(scan func(dest ...interface{}) error) (Entry, error) {
	var (
		e         Entry
		startedAt int64
		duration  float64
		artifact  sql.NullString
		errText   sql.NullString
	)
	if err := scan(&e.SessionID, &startedAt, &duration, &e.ChunkCount, &artifact, &e.Status, &errText); err != nil {
		if err == sql.ErrNoRows {
			return e, err
		}
		return e, fmt.Errorf("scan session: %w", err)
	}
	e.StartedAt = time.Unix(startedAt, 0).UTC()
	e.Duration = time.Duration(duration * float64(time.Second))
	if artifact.Valid {
		e.ArtifactPath = artifact.String
	}
	if errText.Valid {
		e.Error = errText.String
	}
	return e, nil
}
