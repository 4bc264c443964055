package events

import (
	"context"
)

// DefaultQueueBound is the default capacity of a [Queue].
const DefaultQueueBound = 1_000

// Queue is a bounded in-order event queue.  Producers block when the queue
// is full, which pauses event emission without pausing computation.
type Queue struct {
	ch chan *Event
}

// type check
var _ Sink = (*Queue)(nil)

// NewQueue returns a new queue.  bound is the capacity; zero means
// [DefaultQueueBound].
func NewQueue(bound int) (q *Queue) {
	if bound == 0 {
		bound = DefaultQueueBound
	}

	return &Queue{
		ch: make(chan *Event, bound),
	}
}

// Emit implements the [Sink] interface for *Queue.  It blocks while the
// queue is full and gives up when ctx is done.
func (q *Queue) Emit(ctx context.Context, ev *Event) {
	select {
	case q.ch <- ev:
		// Queued.
	case <-ctx.Done():
		// The consumer is gone.
	}
}

// Next returns the next event.  ok is false when ctx is done before an event
// arrives.
func (q *Queue) Next(ctx context.Context) (ev *Event, ok bool) {
	select {
	case ev = <-q.ch:
		return ev, true
	case <-ctx.Done():
		return nil, false
	}
}

// TryNext returns the next event without blocking.  ok is false when the
// queue is empty.
func (q *Queue) TryNext() (ev *Event, ok bool) {
	select {
	case ev = <-q.ch:
		return ev, true
	default:
		return nil, false
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() (n int) {
	return len(q.ch)
}
