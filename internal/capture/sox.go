package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Default stop-ladder and start-detection windows.
const (
	defaultStartTimeout = 3 * time.Second
	defaultGracePeriod  = 5 * time.Second
	defaultTermPeriod   = 2 * time.Second
)

// proc is the slice of a running process the stop ladder needs.
// Wrapping *exec.Cmd behind it lets tests drive the ladder without
// spawning real processes.
type proc interface {
	Signal(sig os.Signal) error
	Kill() error
	Done() <-chan error // resolves exactly once, when the process exits
}

// SoxService records through the external sox binary, one process per
// chunk, reading from the default input device.
type SoxService struct {
	Bin        string // sox binary; empty means "sox"
	SampleRate int
	Channels   int
	BitDepth   int

	StartTimeout time.Duration // wait for the output file to appear
	GracePeriod  time.Duration // SIGINT → exit wait
	TermPeriod   time.Duration // SIGTERM → exit wait

	Log *slog.Logger

	// startProc spawns the recorder process. Nil means exec the real binary.
	startProc func(bin string, args ...string) (proc, *bytes.Buffer, error)
}

// Start spawns sox writing to path and waits for the output file to be
// created before returning, so a missing input device surfaces as
// ErrStartFailed here instead of as a silent empty chunk later.
func (s *SoxService) Start(ctx context.Context, path string, maxDuration time.Duration) (Capture, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &Error{Op: "start", Path: path, Err: err}
	}

	// Watch the target directory before spawning so the create event for
	// the output file cannot be missed.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &Error{Op: "start", Path: path, Err: err}
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return nil, &Error{Op: "start", Path: path, Err: err}
	}

	start := s.startProc
	if start == nil {
		start = execStart
	}
	p, stderr, err := start(s.bin(), s.args(path, maxDuration)...)
	if err != nil {
		return nil, &Error{Op: "start", Path: path, Err: fmt.Errorf("%w: %v", ErrStartFailed, err)}
	}

	timeout := s.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				continue
			}
			if ev.Name == path && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				c := s.newCapture(p, path)
				go c.supervise()
				return c, nil
			}
		case <-watcher.Errors:
			// Watcher errors are non-fatal; the deadline still bounds us.
		case err := <-p.Done():
			// Recorder exited before producing the file: device unavailable,
			// bad flags, or binary missing from PATH.
			return nil, &Error{Op: "start", Path: path, Err: startFailure(err, stderr)}
		case <-deadline.C:
			p.Kill()
			<-p.Done()
			return nil, &Error{Op: "start", Path: path, Err: fmt.Errorf("%w: no output after %v", ErrStartFailed, timeout)}
		case <-ctx.Done():
			p.Kill()
			<-p.Done()
			return nil, &Error{Op: "start", Path: path, Err: ctx.Err()}
		}
	}
}

func (s *SoxService) bin() string {
	if s.Bin != "" {
		return s.Bin
	}
	return "sox"
}

// args builds the sox invocation: default input device, configured format,
// bounded by a trim effect when maxDuration is positive.
func (s *SoxService) args(path string, maxDuration time.Duration) []string {
	args := []string{
		"-d",
		"-r", strconv.Itoa(s.SampleRate),
		"-c", strconv.Itoa(s.Channels),
		"-b", strconv.Itoa(s.BitDepth),
		path,
	}
	if maxDuration > 0 {
		args = append(args, "trim", "0", strconv.FormatFloat(maxDuration.Seconds(), 'f', -1, 64))
	}
	return args
}

func (s *SoxService) newCapture(p proc, path string) *soxCapture {
	grace, term := s.GracePeriod, s.TermPeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	if term <= 0 {
		term = defaultTermPeriod
	}
	return &soxCapture{
		p:     p,
		path:  path,
		grace: grace,
		term:  term,
		log:   s.logger(),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
}

func (s *SoxService) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func startFailure(exitErr error, stderr *bytes.Buffer) error {
	detail := ""
	if stderr != nil {
		detail = string(bytes.TrimSpace(stderr.Bytes()))
	}
	if detail != "" {
		return fmt.Errorf("%w: %s", ErrStartFailed, detail)
	}
	if exitErr != nil {
		return fmt.Errorf("%w: %v", ErrStartFailed, exitErr)
	}
	return ErrStartFailed
}

// execStart spawns the real recorder binary with stderr captured.
func execStart(bin string, args ...string) (proc, *bytes.Buffer, error) {
	cmd := exec.Command(bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return &execProc{cmd: cmd, done: done}, &stderr, nil
}

type execProc struct {
	cmd  *exec.Cmd
	done chan error
}

func (p *execProc) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProc) Kill() error                { return p.cmd.Process.Kill() }
func (p *execProc) Done() <-chan error         { return p.done }

// soxCapture supervises one running sox process.
type soxCapture struct {
	p     proc
	path  string
	grace time.Duration
	term  time.Duration
	log   *slog.Logger

	done chan struct{}
	err  error

	stopOnce sync.Once
	stop     chan struct{}
}

func (c *soxCapture) Done() <-chan struct{} { return c.done }

func (c *soxCapture) Err() error { return c.err }

func (c *soxCapture) StopEarly() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// supervise waits for the process to finish on its own or runs the
// graceful-then-forced stop ladder when an early stop is requested.
// Exactly one of the two paths sets c.err, then done is closed.
func (c *soxCapture) supervise() {
	defer close(c.done)

	select {
	case err := <-c.p.Done():
		// Natural exit: the trim duration elapsed (or the recorder failed).
		if err != nil {
			c.err = &Error{Op: "record", Path: c.path, Err: err}
		}
		return
	case <-c.stop:
	}

	// SIGINT first: sox flushes and closes the WAV header on interrupt.
	_ = c.p.Signal(os.Interrupt)
	select {
	case <-c.p.Done():
		return
	case <-time.After(c.grace):
	}

	c.log.Warn("recorder ignored interrupt, sending SIGTERM", "path", c.path)
	_ = c.p.Signal(syscall.SIGTERM)
	select {
	case <-c.p.Done():
		return
	case <-time.After(c.term):
	}

	c.log.Warn("recorder ignored SIGTERM, killing", "path", c.path)
	_ = c.p.Kill()
	<-c.p.Done()
	c.err = &Error{Op: "stop", Path: c.path, Err: ErrForceKilled}
}
