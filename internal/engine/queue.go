package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/rxfn/internal/ir"
)

// Event is one input event addressed to a stream.
type Event struct {
	Stream string
	Data   ir.IRObject
}

// errQueueClosed is returned by take once the queue is closed and drained.
var errQueueClosed = errors.New("event queue closed")

// eventQueue buffers events between producers and the Run loop. It is
// unbounded; take hands the loop every pending event in one swap.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	closed  bool
	ready   chan struct{} // one token after an enqueue or close, never closed
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// Enqueue appends ev. Returns false once the queue is closed.
func (q *eventQueue) Enqueue(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, ev)
	q.notify()
	return true
}

// Close rejects further events. Events already queued are still taken.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.notify()
	}
}

func (q *eventQueue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// take blocks until events are pending and returns all of them in
// enqueue order. It returns errQueueClosed when the queue is closed and
// empty, or the context's error.
func (q *eventQueue) take(ctx context.Context) ([]Event, error) {
	for {
		q.mu.Lock()
		batch, closed := q.pending, q.closed
		q.pending = nil
		q.mu.Unlock()

		switch {
		case len(batch) > 0:
			return batch, nil
		case closed:
			return nil, errQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		}
	}
}

// Len returns the number of events waiting to be taken.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
