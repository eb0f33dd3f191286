package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
)

// framesPerBuffer bounds how long a read blocks; at 16kHz this is ~32ms,
// which also caps how stale an early-stop check can be.
const framesPerBuffer = 512

// PortAudioService records in-process from the default input device,
// writing PCM WAV incrementally. Alternative to SoxService for hosts
// without a sox binary.
type PortAudioService struct {
	SampleRate int
	Channels   int
	BitDepth   int

	Log *slog.Logger
}

func (s *PortAudioService) Start(ctx context.Context, path string, maxDuration time.Duration) (Capture, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &Error{Op: "start", Path: path, Err: err}
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, &Error{Op: "start", Path: path, Err: fmt.Errorf("%w: %v", ErrStartFailed, err)}
	}

	f, err := os.Create(path)
	if err != nil {
		portaudio.Terminate()
		return nil, &Error{Op: "start", Path: path, Err: err}
	}

	in := make([]int16, framesPerBuffer*s.Channels)
	stream, err := portaudio.OpenDefaultStream(s.Channels, 0, float64(s.SampleRate), framesPerBuffer, in)
	if err != nil {
		f.Close()
		os.Remove(path)
		portaudio.Terminate()
		return nil, &Error{Op: "start", Path: path, Err: fmt.Errorf("%w: %v", ErrStartFailed, err)}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		f.Close()
		os.Remove(path)
		portaudio.Terminate()
		return nil, &Error{Op: "start", Path: path, Err: fmt.Errorf("%w: %v", ErrStartFailed, err)}
	}

	c := &paCapture{
		path:      path,
		stream:    stream,
		file:      f,
		enc:       wav.NewEncoder(f, s.SampleRate, s.BitDepth, s.Channels, 1),
		in:        in,
		scratch:   make([]int, len(in)),
		rate:      s.SampleRate,
		channels:  s.Channels,
		maxFrames: int(maxDuration.Seconds() * float64(s.SampleRate)),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
	}
	go c.loop()
	return c, nil
}

type paCapture struct {
	path      string
	stream    *portaudio.Stream
	file      *os.File
	enc       *wav.Encoder
	in        []int16
	scratch   []int
	rate      int
	channels  int
	maxFrames int

	done chan struct{}
	err  error

	stopOnce sync.Once
	stop     chan struct{}
}

func (c *paCapture) Done() <-chan struct{} { return c.done }

func (c *paCapture) Err() error { return c.err }

func (c *paCapture) StopEarly() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *paCapture) loop() {
	defer close(c.done)
	defer c.teardown()

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: c.channels, SampleRate: c.rate},
		SourceBitDepth: 16,
	}

	frames := 0
	for c.maxFrames <= 0 || frames < c.maxFrames {
		select {
		case <-c.stop:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			c.fail("record", err)
			return
		}
		for i, v := range c.in {
			c.scratch[i] = int(v)
		}
		buf.Data = c.scratch
		if err := c.enc.Write(buf); err != nil {
			c.fail("record", err)
			return
		}
		frames += framesPerBuffer
	}
}

// teardown flushes the WAV header and releases the stream. The encoder
// close matters most: without it the file has a zero-length header.
func (c *paCapture) teardown() {
	c.stream.Stop()
	c.stream.Close()
	if err := c.enc.Close(); err != nil {
		c.fail("flush", err)
	}
	if err := c.file.Close(); err != nil {
		c.fail("flush", err)
	}
	portaudio.Terminate()
}

// fail records the first error observed; later ones are side effects.
func (c *paCapture) fail(op string, err error) {
	if c.err == nil {
		c.err = &Error{Op: op, Path: c.path, Err: err}
	}
}
