// Package events provides the task event envelope, the Sink contract the
// executor publishes to, and an in-memory Bus that fans events out.
package events

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Sink receives events from the executor. Publish is called while the
// executor holds its lock: it must not block and must not call back into
// the executor synchronously.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Filter selects events. Zero fields match everything. A non-empty Owner
// excludes events owned by someone else; owner-less events still match.
type Filter struct {
	Types  []EventType
	Owner  string
	TaskID string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Type) {
		return false
	}
	if f.Owner != "" && e.Owner != "" && e.Owner != f.Owner {
		return false
	}
	return f.TaskID == "" || e.TaskID == f.TaskID
}

type subscription struct {
	filter  Filter
	handler Subscriber
}

// Bus is an in-memory event bus. Publish enqueues without blocking; a single
// dispatch goroutine records history and invokes subscribers in publish
// order, so subscribers must not block.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]subscription
	nextID      int
	queue       chan Event
	history     *ring[Event]
	dropped     atomic.Uint64
	closed      bool
	done        chan struct{}
}

// NewBus creates a bus whose queue and history both hold bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	b := &Bus{
		subscribers: make(map[int]subscription),
		queue:       make(chan Event, bufferSize),
		history:     newRing[Event](bufferSize),
		done:        make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	for {
		select {
		case e := <-b.queue:
			b.history.add(e)
			b.notify(e)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) notify(e Event) {
	b.mu.RLock()
	matched := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.filter.Match(e) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(e)
	}
}

// Publish enqueues an event. It never blocks: when the queue is full the
// event is dropped and counted.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	select {
	case b.queue <- e:
	default:
		b.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribe registers a handler for the given event types (all when none).
// It returns an unsubscribe function.
func (b *Bus) Subscribe(handler Subscriber, eventTypes ...EventType) func() {
	return b.Watch(Filter{Types: eventTypes}, handler)
}

// Watch registers a handler for events matching f.
func (b *Bus) Watch(f Filter, handler Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = subscription{filter: f, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// SubscribeChan is Subscribe delivering to a buffered channel.
func (b *Bus) SubscribeChan(bufSize int, eventTypes ...EventType) (<-chan Event, func()) {
	return b.WatchChan(Filter{Types: eventTypes}, bufSize)
}

// WatchChan delivers events matching f to a buffered channel. Events are
// dropped when the channel is full. The returned function unsubscribes and
// closes the channel.
func (b *Bus) WatchChan(f Filter, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	var (
		mu     sync.Mutex
		once   sync.Once
		closed bool
	)

	unsubscribe := b.Watch(f, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})

	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// History returns up to limit of the most recent events, oldest first.
func (b *Bus) History(limit int) []Event {
	return b.history.last(limit, nil)
}

// Query returns up to limit of the most recent events matching f, oldest first.
func (b *Bus) Query(f Filter, limit int) []Event {
	return b.history.last(limit, f.Match)
}

// Close stops dispatching. Queued events that were not yet dispatched are
// discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}
