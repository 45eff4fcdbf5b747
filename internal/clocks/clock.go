package clocks

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	// After delivers the clock time once d has elapsed on this clock.
	After(d time.Duration) <-chan time.Time
}

type SystemClock struct{}

func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	return time.Now()
}

func (c *SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

var _ Clock = (*SystemClock)(nil)

// FrozenClock only moves when Advance is called. Channels returned by After
// fire during the Advance call that reaches their deadline.
type FrozenClock struct {
	now     time.Time
	waiters []waiter
	added   chan struct{}
	mu      *sync.Mutex
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewFrozenClock() *FrozenClock {
	return &FrozenClock{
		now:   time.Unix(0, 0),
		added: make(chan struct{}, 1),
		mu:    &sync.Mutex{},
	}
}

func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FrozenClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: c.now.Add(d), ch: ch})
	select {
	case c.added <- struct{}{}:
	default:
	}
	return ch
}

func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

// Waiters returns the number of After channels that have not fired yet.
func (c *FrozenClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// BlockUntilWaiters blocks until at least n After channels are pending.
func (c *FrozenClock) BlockUntilWaiters(n int) {
	for {
		if c.Waiters() >= n {
			return
		}
		select {
		case <-c.added:
		case <-time.After(time.Millisecond):
		}
	}
}

var _ Clock = (*FrozenClock)(nil)
