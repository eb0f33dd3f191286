package session

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Session.
type State int

const (
	Idle State = iota
	Active
	Finalizing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ChunkStatus is the lifecycle state of a single chunk.
type ChunkStatus int

const (
	ChunkRecording ChunkStatus = iota
	ChunkComplete
	ChunkFailed
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkRecording:
		return "recording"
	case ChunkComplete:
		return "complete"
	case ChunkFailed:
		return "failed"
	}
	return "unknown"
}

// Chunk is one bounded unit of audio capture belonging to a session,
// written to its own file. Seq starts at 1 and is gapless within a session;
// a failed chunk keeps its number.
type Chunk struct {
	Seq     int
	Path    string
	Planned time.Duration
	Actual  time.Duration
	Status  ChunkStatus
}

// Session is one complete hold-to-record interaction: an ordered sequence
// of chunks plus lifecycle state. It is owned and mutated exclusively by
// the controller loop.
type Session struct {
	ID        string
	StartTime time.Time
	Chunks    []Chunk
	State     State
}

// NewID returns a session identifier derived from the given time plus a
// short random suffix, so two sessions started within the same second
// still get distinct IDs.
func NewID(now time.Time) string {
	return now.Format("20060102_150405") + "_" + uuid.New().String()[:8]
}

// NextSeq returns the sequence number the next chunk should carry.
func (s *Session) NextSeq() int {
	return len(s.Chunks) + 1
}

// CompletedPaths returns the file paths of complete chunks in sequence order.
func (s *Session) CompletedPaths() []string {
	paths := make([]string, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		if c.Status == ChunkComplete {
			paths = append(paths, c.Path)
		}
	}
	return paths
}

// Snapshot builds the crash-recovery record for this session.
func (s *Session) Snapshot(status string) *Snapshot {
	return &Snapshot{
		SessionID:  s.ID,
		StartTime:  s.StartTime.Unix(),
		ChunkPaths: s.CompletedPaths(),
		Status:     status,
	}
}

// Result is delivered to the host when a session finishes, successfully or
// not. ChunkPaths always lists the complete chunks so the host can salvage
// partial audio when assembly failed.
type Result struct {
	SessionID    string
	ChunkPaths   []string
	ArtifactPath string
	Duration     time.Duration
	Err          error
}

// Callbacks is the narrow surface the controller notifies the host through.
// Nil fields are skipped. Callbacks run on the controller goroutine and
// should return promptly.
type Callbacks struct {
	OnSessionStart    func(sessionID string)
	OnChunkComplete   func(path string)
	OnSessionStop     func()
	OnSessionComplete func(Result)
}

// Info is a read-only snapshot of the controller's current session,
// safe to request from any goroutine.
type Info struct {
	SessionID  string
	Active     bool
	Elapsed    time.Duration
	ChunkCount int
}
