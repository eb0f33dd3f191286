package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/keytape/keytape/internal/capture"
)

// fakeCapture is a scripted capture.Capture for driving the recorder
// without real processes.
type fakeCapture struct {
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	err     error
}

func (c *fakeCapture) Done() <-chan struct{} { return c.done }
func (c *fakeCapture) Err() error            { return c.err }
func (c *fakeCapture) StopEarly() {
	c.once.Do(func() { close(c.stopped) })
}

type startCall struct {
	path    string
	planned time.Duration
}

// fakeService satisfies capture.Service. Each Start writes an output file
// and returns a capture that ends after the planned duration, or sooner on
// StopEarly. Per-call failure modes are keyed by 1-based start number.
type fakeService struct {
	mu         sync.Mutex
	starts     []startCall
	failStarts map[int]bool // Start returns ErrStartFailed
	smallFiles map[int]bool // output stays under the validity threshold
	content    []byte       // file contents; default 2KiB of zeros
	captureErr error        // reported by Err after Done
}

func (s *fakeService) Start(ctx context.Context, path string, maxDuration time.Duration) (capture.Capture, error) {
	s.mu.Lock()
	n := len(s.starts) + 1
	s.starts = append(s.starts, startCall{path: path, planned: maxDuration})
	fail := s.failStarts[n]
	small := s.smallFiles[n]
	s.mu.Unlock()

	if fail {
		return nil, &capture.Error{Op: "start", Path: path, Err: capture.ErrStartFailed}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data := s.content
	if data == nil {
		data = make([]byte, 2048)
	}
	if small {
		data = make([]byte, 100)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}

	c := &fakeCapture{done: make(chan struct{}), stopped: make(chan struct{}), err: s.captureErr}
	go func() {
		select {
		case <-time.After(maxDuration):
		case <-c.stopped:
		case <-ctx.Done():
		}
		close(c.done)
	}()
	return c, nil
}

func (s *fakeService) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}

func never() bool { return false }

func testRecorder(svc capture.Service) *ChunkRecorder {
	return &ChunkRecorder{Service: svc, PollInterval: 5 * time.Millisecond}
}

func TestRecordChunkNaturalEnd(t *testing.T) {
	svc := &fakeService{}
	rec := testRecorder(svc)
	path := filepath.Join(t.TempDir(), "chunk_001.wav")

	dur, err := rec.RecordChunk(context.Background(), path, 50*time.Millisecond, never)
	if err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}
	if dur < 40*time.Millisecond || dur > 500*time.Millisecond {
		t.Errorf("duration = %v, want roughly the planned 50ms", dur)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output file missing: %v", err)
	}
}

func TestRecordChunkEarlyStop(t *testing.T) {
	svc := &fakeService{}
	rec := testRecorder(svc)
	path := filepath.Join(t.TempDir(), "chunk_001.wav")

	deadline := time.Now().Add(30 * time.Millisecond)
	stop := func() bool { return time.Now().After(deadline) }

	start := time.Now()
	dur, err := rec.RecordChunk(context.Background(), path, 5*time.Second, stop)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}
	// The stop must land within a poll tick of the request, nowhere near
	// the 5s plan.
	if elapsed > 500*time.Millisecond {
		t.Errorf("early stop took %v, want well under the planned duration", elapsed)
	}
	if dur > elapsed+10*time.Millisecond {
		t.Errorf("reported duration %v exceeds wall clock %v", dur, elapsed)
	}
}

func TestRecordChunkStartFailure(t *testing.T) {
	svc := &fakeService{failStarts: map[int]bool{1: true}}
	rec := testRecorder(svc)
	path := filepath.Join(t.TempDir(), "chunk_001.wav")

	_, err := rec.RecordChunk(context.Background(), path, 50*time.Millisecond, never)
	if !errors.Is(err, capture.ErrStartFailed) {
		t.Fatalf("err = %v, want ErrStartFailed", err)
	}
}

func TestRecordChunkRejectsTinyFile(t *testing.T) {
	svc := &fakeService{smallFiles: map[int]bool{1: true}}
	rec := testRecorder(svc)
	path := filepath.Join(t.TempDir(), "chunk_001.wav")

	_, err := rec.RecordChunk(context.Background(), path, 30*time.Millisecond, never)
	var capErr *capture.Error
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *capture.Error", err)
	}
	if capErr.Op != "validate" {
		t.Errorf("Op = %q, want %q", capErr.Op, "validate")
	}
}

func TestRecordChunkMissingFile(t *testing.T) {
	dir := t.TempDir()
	svc := &fakeService{}
	rec := testRecorder(svc)
	path := filepath.Join(dir, "chunk_001.wav")

	gone := func() bool {
		os.Remove(path)
		return false
	}
	_, err := rec.RecordChunk(context.Background(), path, 30*time.Millisecond, gone)
	var capErr *capture.Error
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *capture.Error", err)
	}
}

func TestRecordChunkCaptureErrorSurfaces(t *testing.T) {
	want := &capture.Error{Op: "record", Err: errors.New("device disappeared")}
	svc := &fakeService{captureErr: want}
	rec := testRecorder(svc)
	path := filepath.Join(t.TempDir(), "chunk_001.wav")

	_, err := rec.RecordChunk(context.Background(), path, 30*time.Millisecond, never)
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestRecordChunkForceKillKeepsValidFile(t *testing.T) {
	// A capture that had to be killed can still leave a complete file
	// behind; the file, not the exit path, decides the chunk's fate.
	svc := &fakeService{captureErr: &capture.Error{Op: "stop", Err: capture.ErrForceKilled}}
	rec := testRecorder(svc)
	path := filepath.Join(t.TempDir(), "chunk_001.wav")

	dur, err := rec.RecordChunk(context.Background(), path, 30*time.Millisecond, never)
	if err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}
	if dur <= 0 {
		t.Errorf("duration = %v, want > 0", dur)
	}
}

func TestRecordChunkDurationFromHeader(t *testing.T) {
	// When the output is a readable WAV, the header length wins over the
	// wall clock.
	svc := &fakeService{content: wavBytes(t, 16000)} // exactly 1s at 16kHz
	rec := testRecorder(svc)
	path := filepath.Join(t.TempDir(), "chunk_001.wav")

	dur, err := rec.RecordChunk(context.Background(), path, 30*time.Millisecond, never)
	if err != nil {
		t.Fatalf("RecordChunk: %v", err)
	}
	if d := (dur - time.Second).Abs(); d > 5*time.Millisecond {
		t.Errorf("duration = %v, want 1s from the WAV header", dur)
	}
}

// wavBytes renders frames of silence as a 16kHz mono PCM WAV.
func wavBytes(t *testing.T, frames int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		SourceBitDepth: 16,
		Data:           make([]int, frames),
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
