// Package recorder contains the hold-to-record engine: the command queue,
// the chunk recorder, and the session controller that owns all session
// state.
package recorder

import (
	"sync"
	"time"
)

// Command is a control instruction consumed by the session controller.
type Command int

const (
	// Start begins a session when the controller is idle. Duplicate Starts
	// while a session is active are no-ops.
	Start Command = iota
	// Stop ends the active session. A Stop is never dropped.
	Stop
	// Shutdown stops any active session and terminates the controller loop.
	Shutdown
)

func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Shutdown:
		return "shutdown"
	}
	return "unknown"
}

// Queue is the concurrency-safe FIFO bridging the key observer (and any
// timers) to the single-threaded controller. It is the only shared mutable
// state in the subsystem.
type Queue struct {
	mu    sync.Mutex
	items []Command
	wake  chan struct{} // capacity 1; nudges a waiting Dequeue
}

// NewQueue returns an empty command queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends cmd without ever blocking. A Start is coalesced when
// another Start is already pending; Stop and Shutdown are always appended,
// because losing a Stop would leave a session recording forever.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.Lock()
	if cmd == Start {
		for _, c := range q.items {
			if c == Start {
				q.mu.Unlock()
				return
			}
		}
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest command, waiting up to timeout
// for one to arrive. ok is false when the timeout elapsed with the queue
// still empty.
func (q *Queue) Dequeue(timeout time.Duration) (cmd Command, ok bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			cmd = q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				// Keep the wake token armed for the items left behind.
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return cmd, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-deadline.C:
			return 0, false
		}
	}
}

// PendingStop reports whether a Stop or Shutdown is waiting in the queue,
// without consuming it. The chunk loop polls this mid-chunk so a release
// interrupts the in-flight capture instead of waiting out the chunk.
func (q *Queue) PendingStop() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.items {
		if c == Stop || c == Shutdown {
			return true
		}
	}
	return false
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
