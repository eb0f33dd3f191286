package keymon

import (
	"bufio"
	"context"
	"io"
)

// ToggleSource synthesizes combo events from line input: one line presses
// both combo keys, the next releases them. It is the terminal fallback for
// hosts that do not provide a global key hook.
type ToggleSource struct {
	Combo Combo
	In    io.Reader
}

// Run emits synthesized events on out until ctx is cancelled or the reader
// is exhausted. It never closes out; the caller owns the channel.
func (t *ToggleSource) Run(ctx context.Context, out chan<- Event) {
	scanner := bufio.NewScanner(t.In)
	held := false
	for scanner.Scan() {
		held = !held
		for _, key := range []string{t.Combo.Modifier, t.Combo.Trigger} {
			if key == "" {
				continue
			}
			select {
			case out <- Event{Key: key, Pressed: held}:
			case <-ctx.Done():
				return
			}
			if t.Combo.Modifier == t.Combo.Trigger {
				break
			}
		}
	}
}
