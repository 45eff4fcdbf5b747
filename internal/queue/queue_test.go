package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

func TestChannelQueue_PublishConsume(t *testing.T) {
	q := NewChannelQueue[StreamMessage](2)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, StreamRecord{Index: 0, SizeBytes: 8}))
	require.NoError(t, q.Publish(ctx, StreamComplete{Index: 1}))
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, StreamRecord{Index: 0, SizeBytes: 8}, <-q.Consume())
	assert.Equal(t, StreamComplete{Index: 1}, <-q.Consume())
}

func TestChannelQueue_Close(t *testing.T) {
	q := NewChannelQueue[int](0)

	blocked := make(chan error, 1)
	go func() {
		blocked <- q.Publish(context.Background(), 1)
	}()

	q.Close()
	q.Close()

	select {
	case err := <-blocked:
		assert.True(t, nebulaerrors.IsQueueClosed(err))
	case <-time.After(time.Second):
		t.Fatal("publisher was not released by Close")
	}

	assert.True(t, q.IsClosed())
	assert.ErrorIs(t, q.Publish(context.Background(), 2), nebulaerrors.ErrQueueClosed)
}

func TestChannelQueue_PublishContextCancelled(t *testing.T) {
	q := NewChannelQueue[int](0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, 1), context.Canceled)
}

func TestStreamQueues(t *testing.T) {
	users := destination.Descriptor{Namespace: "public", Name: "users"}
	queues := NewStreamQueues([]destination.Descriptor{users}, 1)

	q, err := queues.Get(users)
	require.NoError(t, err)

	_, err = queues.Get(destination.Descriptor{Name: "missing"})
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeNotFound))

	queues.CloseAll()
	assert.True(t, q.IsClosed())
}
