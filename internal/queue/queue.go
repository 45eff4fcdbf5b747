// Package queue provides the closable per-stream message queues that connect
// record ingestion to the spill tasks.
package queue

import (
	"context"
	"sync"

	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// ChannelQueue is a bounded, closable queue. Publish blocks while the buffer
// is full. Closing never closes the data channel, so a slow publisher cannot
// panic; consumers select on Done instead.
type ChannelQueue[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewChannelQueue creates a queue buffering up to capacity messages
func NewChannelQueue[T any](capacity int) *ChannelQueue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &ChannelQueue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Publish enqueues v. It returns ErrQueueClosed once the queue is closed and
// ctx.Err() if ctx ends first.
func (q *ChannelQueue[T]) Publish(ctx context.Context, v T) error {
	if q.IsClosed() {
		return nebulaerrors.ErrQueueClosed
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return nebulaerrors.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns the receive side of the queue
func (q *ChannelQueue[T]) Consume() <-chan T {
	return q.ch
}

// Done is closed when the queue is closed
func (q *ChannelQueue[T]) Done() <-chan struct{} {
	return q.done
}

// Close closes the queue. It is idempotent.
func (q *ChannelQueue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

// IsClosed reports whether Close was called
func (q *ChannelQueue[T]) IsClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered messages
func (q *ChannelQueue[T]) Len() int {
	return len(q.ch)
}
