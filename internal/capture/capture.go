// Package capture abstracts bounded audio recording behind a uniform
// start / stop-early service, with an external sox backend and an
// in-process PortAudio backend.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrStartFailed indicates the capture utility could not begin recording,
// typically because no input device is available.
var ErrStartFailed = errors.New("capture start failed")

// ErrForceKilled indicates the graceful stop sequence timed out and the
// capture process had to be killed. The output file may still be usable.
var ErrForceKilled = errors.New("capture force-killed")

// Error wraps a capture failure with the failing operation and target file.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return "capture " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Capture is one in-flight bounded recording.
type Capture interface {
	// Done is closed once the recorder has fully stopped and flushed.
	Done() <-chan struct{}
	// Err reports the capture outcome. Only valid after Done is closed.
	Err() error
	// StopEarly asks the capture to finish before its planned duration.
	// Idempotent; safe to call after the capture has already finished.
	StopEarly()
}

// Service starts recordings bounded by a maximum duration.
type Service interface {
	Start(ctx context.Context, path string, maxDuration time.Duration) (Capture, error)
}
