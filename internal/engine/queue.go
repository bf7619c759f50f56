package engine

import "sync"

// eventQueue is a thread-safe FIFO for progress events.
//
// The queue is unbounded so workers never block on the persist loop;
// a run's event volume is bounded by its step count, not by load.
//
// The signal channel (buffered, size 1) lets the persist loop wait
// without spinning: Enqueue sends a coalesced wakeup, Close closes the
// channel so every waiter returns immediately from then on.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event. Safe from any goroutine. Returns false if
// the queue has been closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking send: the size-1 buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front event without blocking.
// Returns (Event{}, false) when the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Zero the slot so the payload pointers become collectable; the
	// backing array would otherwise retain them until reallocation.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Pair with TryDequeue:
//
//	for {
//	    e, ok := q.TryDequeue()
//	    if ok { ... continue }
//	    if q.Drained() { return }
//	    <-q.Wait()
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty, the persist
// loop's termination condition. A stale coalesced signal can wake the
// loop with an empty queue while producers are still running, so
// emptiness alone does not mean done.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close marks the queue as done and wakes all waiters. Enqueue after
// Close is refused. Idempotent.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
