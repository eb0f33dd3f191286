package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/keytape/keytape/internal/assemble"
	"github.com/keytape/keytape/internal/capture"
	"github.com/keytape/keytape/internal/session"
)

// idleDequeueTimeout is how long the command loop blocks on an empty
// queue before re-checking its context.
const idleDequeueTimeout = time.Second

const (
	defaultChunkDuration = 30 * time.Second
	defaultMaxSession    = time.Hour
)

// stopCause says why a session's chunk loop ended.
type stopCause int

const (
	stopNone stopCause = iota
	stopUser
	stopShutdown
)

// Controller runs recording sessions. Run is the single goroutine that
// owns session and chunk state; key observers and the CLI talk to it only
// through the command queue, and read progress through the Info snapshot.
type Controller struct {
	// ChunkDuration is the planned length of each chunk; default 30s.
	ChunkDuration time.Duration
	// MaxSession caps a session's total length; default one hour.
	MaxSession time.Duration
	// RecordingsDir receives per-session chunk directories and the final
	// assembled artifact. Required.
	RecordingsDir string
	// KeepChunks disables removal of the per-session chunk directory
	// after a successful assembly.
	KeepChunks bool

	AutoSave  *session.AutoSaver
	Callbacks session.Callbacks
	Log       *slog.Logger

	queue     *Queue
	chunks    *ChunkRecorder
	assembler *assemble.Assembler

	mu    sync.Mutex
	info  session.Info
	start time.Time

	done chan struct{}
}

// New returns a controller that consumes commands from q and records
// through rec, assembling finished sessions with asm. Optional behavior is
// configured through the exported fields before calling Run.
func New(q *Queue, rec *ChunkRecorder, asm *assemble.Assembler) *Controller {
	return &Controller{
		queue:     q,
		chunks:    rec,
		assembler: asm,
		done:      make(chan struct{}),
	}
}

// Run consumes commands until a Shutdown arrives or ctx is cancelled.
// Start begins a session, which then blocks Run until the session
// finalizes; commands arriving meanwhile are handled inside the session
// loop. Stop while idle is a stale release and is ignored.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	if c.RecordingsDir == "" {
		return errors.New("recorder: RecordingsDir not set")
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cmd, ok := c.queue.Dequeue(idleDequeueTimeout)
		if !ok {
			continue
		}
		switch cmd {
		case Start:
			if shutdown := c.runSession(ctx); shutdown {
				return nil
			}
		case Stop:
			c.logger().Debug("stop while idle ignored")
		case Shutdown:
			return nil
		}
	}
}

// Stop asks the controller to finish any active session and exit, then
// waits for Run to return. Run must already have been started.
func (c *Controller) Stop() {
	c.queue.Enqueue(Shutdown)
	<-c.done
}

// Info returns a point-in-time view of the active session, or a zero Info
// when idle.
func (c *Controller) Info() session.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := c.info
	if info.Active {
		info.Elapsed = time.Since(c.start)
	}
	return info
}

// runSession drives one session from Active through finalization. It
// reports whether a Shutdown was consumed along the way, so Run can exit
// after the session is wrapped up.
func (c *Controller) runSession(ctx context.Context) bool {
	now := time.Now()
	sess := &session.Session{
		ID:        session.NewID(now),
		StartTime: now,
		State:     session.Active,
	}
	c.logger().Info("session started", "session", sess.ID)
	c.publish(sess)
	if cb := c.Callbacks.OnSessionStart; cb != nil {
		cb(sess.ID)
	}
	if c.AutoSave != nil {
		c.AutoSave.Flush(sess, session.StatusRecording)
	}

	var failure error
	cause := stopNone
	for {
		if ctx.Err() != nil {
			cause = stopShutdown
			break
		}
		if cause = c.pollCommands(); cause != stopNone {
			break
		}
		elapsed := time.Since(sess.StartTime)
		if elapsed >= c.maxSession() {
			c.logger().Info("session cap reached", "session", sess.ID, "elapsed", elapsed)
			c.queue.Enqueue(Stop)
			continue
		}
		planned := min(c.chunkDuration(), c.maxSession()-elapsed)

		seq := sess.NextSeq()
		path := filepath.Join(c.chunkDir(sess.ID), fmt.Sprintf("chunk_%03d.wav", seq))
		chunk := session.Chunk{Seq: seq, Path: path, Planned: planned, Status: session.ChunkRecording}

		actual, err := c.chunks.RecordChunk(ctx, path, planned, c.queue.PendingStop)
		if err != nil {
			chunk.Status = session.ChunkFailed
			sess.Chunks = append(sess.Chunks, chunk)
			c.publish(sess)
			if seq == 1 && errors.Is(err, capture.ErrStartFailed) {
				failure = err
				break
			}
			c.logger().Warn("chunk failed, continuing", "session", sess.ID, "chunk", seq, "error", err)
		} else {
			chunk.Status = session.ChunkComplete
			chunk.Actual = actual
			sess.Chunks = append(sess.Chunks, chunk)
			c.publish(sess)
			c.logger().Debug("chunk complete", "session", sess.ID, "chunk", seq, "duration", actual)
			if cb := c.Callbacks.OnChunkComplete; cb != nil {
				cb(path)
			}
		}
		if c.AutoSave != nil {
			c.AutoSave.MaybeSave(sess)
		}
	}

	c.finalize(ctx, sess, failure)
	return cause == stopShutdown
}

// pollCommands drains whatever is queued between chunks. Duplicate Starts
// are no-ops while a session is active; a Stop or Shutdown ends the chunk
// loop. Commands queued behind a Stop stay queued for the main loop.
func (c *Controller) pollCommands() stopCause {
	for {
		cmd, ok := c.queue.Dequeue(0)
		if !ok {
			return stopNone
		}
		switch cmd {
		case Start:
			c.logger().Debug("start while active ignored")
		case Stop:
			return stopUser
		case Shutdown:
			return stopShutdown
		}
	}
}

func (c *Controller) finalize(ctx context.Context, sess *session.Session, failure error) {
	sess.State = session.Finalizing
	c.publish(sess)
	if cb := c.Callbacks.OnSessionStop; cb != nil {
		cb()
	}

	paths := sess.CompletedPaths()
	result := session.Result{
		SessionID:  sess.ID,
		ChunkPaths: paths,
		Duration:   time.Since(sess.StartTime),
	}

	if failure != nil {
		sess.State = session.Failed
		result.Err = failure
	} else {
		artifact := filepath.Join(c.RecordingsDir, sess.ID+".wav")
		if err := c.assembler.Assemble(ctx, paths, artifact); err != nil {
			sess.State = session.Failed
			result.Err = err
		} else {
			sess.State = session.Completed
			result.ArtifactPath = artifact
		}
	}

	if sess.State == session.Completed {
		c.logger().Info("session completed", "session", sess.ID, "chunks", len(paths), "artifact", result.ArtifactPath)
	} else {
		c.logger().Error("session failed", "session", sess.ID, "chunks", len(paths), "error", result.Err)
	}

	// The snapshot flips to completed even on failure: the session was
	// handled and must not look like a crash to the recover command.
	if c.AutoSave != nil {
		c.AutoSave.Flush(sess, session.StatusCompleted)
	}

	if cb := c.Callbacks.OnSessionComplete; cb != nil {
		cb(result)
	}

	if sess.State == session.Completed && !c.KeepChunks {
		if err := os.RemoveAll(c.chunkDir(sess.ID)); err != nil {
			c.logger().Warn("chunk dir cleanup failed", "session", sess.ID, "error", err)
		}
	}

	c.mu.Lock()
	c.info = session.Info{}
	c.mu.Unlock()
}

func (c *Controller) publish(sess *session.Session) {
	active := sess.State == session.Active || sess.State == session.Finalizing
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = sess.StartTime
	c.info = session.Info{
		SessionID:  sess.ID,
		Active:     active,
		Elapsed:    time.Since(sess.StartTime),
		ChunkCount: len(sess.CompletedPaths()),
	}
}

func (c *Controller) chunkDir(id string) string {
	return filepath.Join(c.RecordingsDir, "session_"+id)
}

func (c *Controller) chunkDuration() time.Duration {
	if c.ChunkDuration > 0 {
		return c.ChunkDuration
	}
	return defaultChunkDuration
}

func (c *Controller) maxSession() time.Duration {
	if c.MaxSession > 0 {
		return c.MaxSession
	}
	return defaultMaxSession
}

func (c *Controller) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
