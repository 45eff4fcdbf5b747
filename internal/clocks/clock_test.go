package clocks_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/nebula-sync/internal/clocks"
)

func TestFrozenClock_After(t *testing.T) {
	clock := clocks.NewFrozenClock()
	start := clock.Now()

	fired := clock.After(10 * time.Second)
	assert.Equal(t, 1, clock.Waiters())

	clock.Advance(9 * time.Second)
	select {
	case <-fired:
		t.Fatal("fired before the deadline")
	default:
	}

	clock.Advance(time.Second)
	select {
	case at := <-fired:
		assert.Equal(t, start.Add(10*time.Second), at)
	default:
		t.Fatal("did not fire at the deadline")
	}
	assert.Equal(t, 0, clock.Waiters())
}

func TestFrozenClock_AfterNonPositive(t *testing.T) {
	clock := clocks.NewFrozenClock()
	select {
	case <-clock.After(0):
	default:
		t.Fatal("zero delay should fire immediately")
	}
}

func TestFrozenClock_BlockUntilWaiters(t *testing.T) {
	clock := clocks.NewFrozenClock()
	go func() {
		<-clock.After(time.Minute)
	}()
	clock.BlockUntilWaiters(1)
	clock.Advance(time.Minute)
	assert.Equal(t, 0, clock.Waiters())
}
