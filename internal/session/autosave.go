package session

import (
	"log/slog"
	"time"
)

// AutoSaver periodically persists in-flight session metadata so a crash
// mid-session loses at most one interval of bookkeeping. Saves are
// best-effort: failures are logged and never propagate into the recording
// loop.
type AutoSaver struct {
	Store    SnapshotStore
	Interval time.Duration
	Log      *slog.Logger

	last time.Time
}

// MaybeSave writes a "recording" snapshot if at least Interval has elapsed
// since the previous save. Called once per chunk-loop iteration.
func (a *AutoSaver) MaybeSave(s *Session) {
	if time.Since(a.last) < a.Interval {
		return
	}
	a.save(s, StatusRecording)
}

// Flush writes a snapshot with the given status unconditionally. Used at
// session start (so a crash during the very first chunk is recoverable)
// and at session completion.
func (a *AutoSaver) Flush(s *Session, status string) {
	a.save(s, status)
}

func (a *AutoSaver) save(s *Session, status string) {
	a.last = time.Now()
	if err := a.Store.Save(s.Snapshot(status)); err != nil {
		a.logger().Warn("auto-save failed", "session", s.ID, "error", err)
	}
}

func (a *AutoSaver) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}
