package checkpoint

import (
	"context"
	"sync"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// ForceFlushEvent asks spill tasks to hand off their open, non-empty files.
// Indexes carries the flushed checkpoint index per stream for logging and
// must not be modified after publication.
type ForceFlushEvent struct {
	Indexes map[destination.Descriptor]int64
}

// IndexFor returns the flushed checkpoint index of stream d, or -1 when none
// was flushed
func (e ForceFlushEvent) IndexFor(d destination.Descriptor) int64 {
	if index, ok := e.Indexes[d]; ok {
		return index
	}
	return -1
}

// EventQueue accepts force flush events
type EventQueue interface {
	Publish(ctx context.Context, event ForceFlushEvent) error
}

// Broadcaster fans force flush events out to per-stream subscribers. Every
// subscriber holds at most one pending event; a newer event replaces an
// unconsumed older one.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[destination.Descriptor]chan ForceFlushEvent
	closed bool
}

// NewBroadcaster creates a broadcaster with no subscribers
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[destination.Descriptor]chan ForceFlushEvent)}
}

// Subscribe returns the event channel of stream d
func (b *Broadcaster) Subscribe(d destination.Descriptor) <-chan ForceFlushEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[d]
	if !ok {
		ch = make(chan ForceFlushEvent, 1)
		b.subs[d] = ch
	}
	return ch
}

// Unsubscribe stops delivering events to stream d
func (b *Broadcaster) Unsubscribe(d destination.Descriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, d)
}

// Publish delivers event to every subscriber without blocking
func (b *Broadcaster) Publish(_ context.Context, event ForceFlushEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nebulaerrors.ErrQueueClosed
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// replace the stale pending event
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

// Close rejects further events
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
