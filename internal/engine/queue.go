package engine

import (
	"sync"

	"github.com/roach88/poolproxy/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeExecute represents an inbound request.
	EventTypeExecute EventType = iota + 1
	// EventTypeReply represents the outcome of an outbound call.
	EventTypeReply
)

func (t EventType) String() string {
	switch t {
	case EventTypeExecute:
		return "execute"
	case EventTypeReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the event loop.
//
// Done, if set, receives the invocation's result after it has been
// committed and its outbound calls handed to the dispatcher.
type Event struct {
	Type    EventType
	Info    ir.MessageInfo
	Execute *ir.ExecuteMsg
	Reply   *ir.Reply
	Done    func(ir.Response, error)
}

// ExecuteEvent wraps an inbound request.
func ExecuteEvent(info ir.MessageInfo, msg ir.ExecuteMsg) Event {
	return Event{Type: EventTypeExecute, Info: info, Execute: &msg}
}

// ReplyEvent wraps a call outcome.
func ReplyEvent(r ir.Reply) Event {
	return Event{Type: EventTypeReply, Reply: &r}
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded: a reply may cause any number of follow-up calls
// whose replies are enqueued while the loop is still processing.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the slot so the message pointers can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
