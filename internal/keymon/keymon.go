// Package keymon turns raw host key events into debounced session commands.
package keymon

import (
	"context"
	"log/slog"

	"github.com/keytape/keytape/internal/recorder"
)

// Event is one raw key press or release from the host event source.
type Event struct {
	Key     string
	Pressed bool
}

// Combo names the modifier+trigger pair whose held state drives recording.
// An empty Modifier means the trigger alone drives the combo.
type Combo struct {
	Modifier string
	Trigger  string
}

// ComboState tracks which combo halves are currently down. Engaged is true
// only while both are. Mutated exclusively by the observer; read-only
// elsewhere.
type ComboState struct {
	ModifierDown bool
	TriggerDown  bool
	Engaged      bool
}

// Enqueuer is the slice of the command queue the observer needs.
type Enqueuer interface {
	Enqueue(cmd recorder.Command)
}

// Observer consumes the host key event stream and enqueues Start on the
// engage edge and Stop on the release edge. It acts only on edge
// transitions of the combined engaged flag, so OS key-repeat storms of an
// already-held key emit nothing. It does no I/O and never blocks beyond
// the enqueue, keeping event-to-command latency in the microseconds.
type Observer struct {
	Combo Combo
	Queue Enqueuer
	Log   *slog.Logger

	state ComboState
}

// Run consumes events until ctx is cancelled or the channel closes.
func (o *Observer) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handle(ev)
		}
	}
}

// State returns the current combo state. Only meaningful from the Run
// goroutine or after Run has returned.
func (o *Observer) State() ComboState {
	return o.state
}

func (o *Observer) handle(ev Event) {
	switch ev.Key {
	case o.Combo.Modifier:
		o.state.ModifierDown = ev.Pressed
		if o.Combo.Trigger == o.Combo.Modifier {
			o.state.TriggerDown = ev.Pressed
		}
	case o.Combo.Trigger:
		o.state.TriggerDown = ev.Pressed
	default:
		return
	}

	engaged := o.state.TriggerDown && (o.Combo.Modifier == "" || o.state.ModifierDown)
	if engaged == o.state.Engaged {
		return
	}
	o.state.Engaged = engaged

	if engaged {
		o.logger().Debug("combo engaged")
		o.Queue.Enqueue(recorder.Start)
	} else {
		o.logger().Debug("combo released")
		o.Queue.Enqueue(recorder.Stop)
	}
}

func (o *Observer) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}
