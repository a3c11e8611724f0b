// Package changestream implements the process-wide broadcast of record
// mutation events. Go has no stdlib broadcast
// channel, so the bus is a small hand-built primitive: a registry of
// per-subscriber buffered channels with non-blocking sends and an explicit
// lag counter. Direct SQLite writes publish synchronously right after
// the write commits, so no polling bridge is needed.
package changestream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Action is the mutation kind carried by an Event.
type Action string

const (
	ActionCreate Action = "Create"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
)

// Table names the conceptual table a ChangeEvent belongs to.
type Table string

const (
	TableMemory       Table = "memory"
	TableEntity       Table = "entity"
	TableRelationship Table = "relationship"
	TableVector       Table = "vector"
	TableVersion      Table = "version"
)

// Event is published after a write is durable.
type Event struct {
	ID     string
	Action Action
	Table  Table
	Record any
}

// Bus is a multi-producer, multi-consumer broadcast of Events, capacity
// bounded per subscriber. A slow consumer lags and loses intermediate
// events rather than stalling the publisher; it is told so explicitly on
// its next Recv rather than silently starved.
type Bus struct {
	mu       sync.Mutex
	subs     map[uint64]*subscriber
	nextID   uint64
	capacity int
}

type subscriber struct {
	ch      chan Event
	tables  map[Table]bool // nil/empty means "all tables"
	lagged  atomic.Bool
	closeCh chan struct{}
	once    sync.Once
}

// NewBus creates a bus whose subscriber channels hold up to capacity
// buffered events before the publisher marks the subscriber as lagging.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{subs: make(map[uint64]*subscriber), capacity: capacity}
}

// Subscription is a consumer's handle onto the bus.
type Subscription struct {
	bus *Bus
	id  uint64
	sub *subscriber
}

// Subscribe registers a new subscriber, optionally filtered to a set of
// tables. No tables means "receive everything".
func (b *Bus) Subscribe(tables ...Table) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	filter := make(map[Table]bool, len(tables))
	for _, t := range tables {
		filter[t] = true
	}

	sub := &subscriber{
		ch:      make(chan Event, b.capacity),
		tables:  filter,
		closeCh: make(chan struct{}),
	}
	b.subs[id] = sub

	return &Subscription{bus: b, id: id, sub: sub}
}

// Publish fans an event out to every matching subscriber without blocking
// on any of them. Subscribers whose channel is full are marked lagged and
// the event is dropped for them.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if len(s.tables) > 0 && !s.tables[evt.Table] {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			s.lagged.Store(true)
		}
	}
}

// Recv blocks until an event arrives, the subscription is cancelled, or ctx
// is done. lagged is true exactly once after events were dropped due to a
// full buffer, and is cleared after being reported.
func (s *Subscription) Recv(ctx context.Context) (evt Event, lagged bool, err error) {
	select {
	case e, ok := <-s.sub.ch:
		if !ok {
			return Event{}, false, context.Canceled
		}
		lagged = s.sub.lagged.Swap(false)
		return e, lagged, nil
	case <-s.sub.closeCh:
		return Event{}, false, context.Canceled
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	}
}

// Close drops the subscription and removes it from the bus immediately, so
// later publishes no longer reach it.
func (s *Subscription) Close() {
	s.sub.once.Do(func() { close(s.sub.closeCh) })

	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}
