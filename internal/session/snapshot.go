package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot status values as written to the auto-save file.
const (
	StatusRecording = "recording"
	StatusCompleted = "completed"
)

// ErrNoSnapshot is returned by Load when no auto-save file exists on disk.
var ErrNoSnapshot = errors.New("no session snapshot")

// Snapshot is the auto-save record: just enough bookkeeping to recover a
// crashed session from the chunk files already on disk.
type Snapshot struct {
	SessionID  string   `json:"sessionId"`
	StartTime  int64    `json:"startTime"` // epoch seconds
	ChunkPaths []string `json:"chunkPaths"`
	Status     string   `json:"status"` // "recording" | "completed"
}

// SnapshotStore persists a Snapshot to disk.
type SnapshotStore interface {
	Save(s *Snapshot) error
	Load() (*Snapshot, error) // returns ErrNoSnapshot if none exists
	Clear() error
}

// diskStore is the concrete SnapshotStore that writes to the XDG data directory.
type diskStore struct {
	path string // full path to session.json
}

// NewSnapshotStore returns a SnapshotStore backed by the XDG data directory.
// Path: $XDG_DATA_HOME/keytape/session.json or ~/.local/share/keytape/session.json
func NewSnapshotStore() (SnapshotStore, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "session.json")}, nil
}

// DataDir returns the keytape-specific XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "keytape"), nil
}

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename,
// so a crash mid-write never leaves a truncated snapshot behind.
func (d *diskStore) Save(s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to persist session snapshot: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist session snapshot: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist session snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist session snapshot: %w", err)
	}

	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to persist session snapshot: %w", err)
	}
	return nil
}

// Load reads and unmarshals the snapshot file.
// Returns ErrNoSnapshot if the file does not exist.
func (d *diskStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read session snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session snapshot: %w", err)
	}
	return &s, nil
}

// Clear removes the snapshot file from disk.
func (d *diskStore) Clear() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session snapshot: %w", err)
	}
	return nil
}
