package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/keytape/keytape/internal/capture"
)

// minChunkBytes is the smallest output treated as real audio; a recorder
// that never got samples leaves a header-only file behind.
const minChunkBytes = 1000

// defaultPollInterval bounds how stale an early-stop request can go
// unnoticed mid-chunk.
const defaultPollInterval = 100 * time.Millisecond

// ChunkRecorder owns one capture start/stop cycle: "record for up to the
// planned duration, or until told to stop" as a single blocking call.
type ChunkRecorder struct {
	Service      capture.Service
	PollInterval time.Duration // early-stop check cadence; default 100ms
	Log          *slog.Logger
}

// RecordChunk starts a bounded capture into path and blocks until it ends
// naturally or shouldStop reports true, in which case the capture is
// stopped early. The graceful-then-forced stop inside the capture service
// guarantees this call always returns. On success the returned duration is
// the chunk's measured length.
func (r *ChunkRecorder) RecordChunk(ctx context.Context, path string, planned time.Duration, shouldStop func() bool) (time.Duration, error) {
	c, err := r.Service.Start(ctx, path, planned)
	if err != nil {
		return 0, err
	}
	started := time.Now()

	poll := r.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	running := true
	for running {
		select {
		case <-c.Done():
			running = false
		case <-ticker.C:
			if shouldStop() {
				c.StopEarly()
				<-c.Done()
				running = false
			}
		case <-ctx.Done():
			c.StopEarly()
			<-c.Done()
			running = false
		}
	}
	elapsed := time.Since(started)

	if err := c.Err(); err != nil {
		if !errors.Is(err, capture.ErrForceKilled) {
			return 0, err
		}
		// A force-killed recorder may still have flushed usable audio;
		// let validation decide.
		r.logger().Warn("capture needed a forced kill", "path", path)
	}

	return r.validate(path, elapsed)
}

// validate applies the chunk post-condition: the file exists and is
// non-trivially sized. Returns the probed WAV duration, falling back to
// wall clock when the header is unreadable.
func (r *ChunkRecorder) validate(path string, elapsed time.Duration) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, &capture.Error{Op: "validate", Path: path, Err: err}
	}
	if info.Size() <= minChunkBytes {
		return 0, &capture.Error{Op: "validate", Path: path, Err: fmt.Errorf("output too small (%d bytes)", info.Size())}
	}
	if dur, err := capture.WavDuration(path); err == nil {
		return dur, nil
	}
	return elapsed, nil
}

func (r *ChunkRecorder) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
