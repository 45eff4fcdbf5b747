package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/queue"
	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
)

type lifecycleFixture struct {
	factory     *DefaultTaskFactory
	writer      *memoryWriter
	launcher    *recordingLauncher
	syncManager *state.SyncManager
}

func newLifecycleFixture(streams ...destination.Descriptor) *lifecycleFixture {
	catalog := testCatalog(streams...)
	f := &lifecycleFixture{
		writer:      newMemoryWriter(),
		launcher:    newRecordingLauncher(),
		syncManager: state.NewSyncManager(catalog),
	}
	f.factory = &DefaultTaskFactory{
		Writer:      f.writer,
		Catalog:     catalog,
		SyncManager: f.syncManager,
		Queues:      queue.NewStreamQueues(streams, 16),
		Logger:      zap.NewNop(),
	}
	return f
}

func (f *lifecycleFixture) failStream(t *testing.T, stream destination.Descriptor, cause error) {
	t.Helper()
	require.NoError(t, f.factory.NewFailStreamTask(f.launcher, stream, cause).Execute(context.Background()))
}

func TestOpenStream_StartsAndRegistersLoader(t *testing.T) {
	f := newLifecycleFixture(users)
	require.NoError(t, f.factory.NewOpenStreamTask(f.launcher, users).Execute(context.Background()))

	loader, ok := f.syncManager.StreamLoader(users)
	require.True(t, ok)
	assert.Same(t, f.writer.loader(users), loader)

	started, closed, _ := f.writer.loader(users).State()
	assert.True(t, started)
	assert.False(t, closed)
	assert.Equal(t, []destination.Descriptor{users}, f.launcher.started)
}

func TestOpenStream_SkipsStreamThatAlreadyFailed(t *testing.T) {
	f := newLifecycleFixture(users)
	f.failStream(t, users, assert.AnError)
	assert.Equal(t, []destination.Descriptor{users}, f.launcher.closed)

	require.NoError(t, f.factory.NewOpenStreamTask(f.launcher, users).Execute(context.Background()))

	assert.Nil(t, f.writer.loader(users), "no loader is created for a failed stream")
	_, ok := f.syncManager.StreamLoader(users)
	assert.False(t, ok)
	assert.Empty(t, f.launcher.started)
}

func TestOpenStream_ClosesLoaderWhenStreamFailsDuringStart(t *testing.T) {
	f := newLifecycleFixture(users)
	f.writer.onStart = func(d destination.Descriptor) {
		f.failStream(t, d, assert.AnError)
	}

	require.NoError(t, f.factory.NewOpenStreamTask(f.launcher, users).Execute(context.Background()))

	started, closed, closeErr := f.writer.loader(users).State()
	assert.True(t, started)
	assert.True(t, closed)
	assert.ErrorIs(t, closeErr, assert.AnError)

	_, ok := f.syncManager.StreamLoader(users)
	assert.False(t, ok)
	assert.Empty(t, f.launcher.started)
	assert.Equal(t, []destination.Descriptor{users}, f.launcher.closed)
}
