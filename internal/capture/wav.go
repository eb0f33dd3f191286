package capture

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// WavDuration reads the WAV header at path and returns the clip duration.
// Used for reporting a chunk's actual length without shelling out to an
// analysis tool.
func WavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	dur, err := d.Duration()
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}
	return dur, nil
}
