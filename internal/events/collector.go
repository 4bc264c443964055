package events

import (
	"context"
	"sync"
)

// Collector is a [Sink] that records all events in memory.  It is intended
// for tests.
type Collector struct {
	mu     sync.Mutex
	events []*Event
}

// type check
var _ Sink = (*Collector)(nil)

// NewCollector returns a new empty collector.
func NewCollector() (c *Collector) {
	return &Collector{}
}

// Emit implements the [Sink] interface for *Collector.
func (c *Collector) Emit(_ context.Context, ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, ev)
}

// Events returns a copy of the recorded events in emission order.
func (c *Collector) Events() (evs []*Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	evs = make([]*Event, len(c.events))
	copy(evs, c.events)

	return evs
}

// Types returns the types of the recorded events in emission order.
func (c *Collector) Types() (types []Type) {
	c.mu.Lock()
	defer c.mu.Unlock()

	types = make([]Type, 0, len(c.events))
	for _, ev := range c.events {
		types = append(types, ev.Type)
	}

	return types
}
