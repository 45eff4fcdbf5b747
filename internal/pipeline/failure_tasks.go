package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/queue"
	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// FailStreamTask ends one stream after a failure. The other streams keep
// running.
type FailStreamTask struct {
	stream      destination.Descriptor
	cause       error
	syncManager *state.SyncManager
	queues      *queue.StreamQueues
	launcher    Launcher
	logger      *zap.Logger
}

func (t *FailStreamTask) Name() string                   { return TaskFailStream }
func (t *FailStreamTask) Stream() destination.Descriptor { return t.stream }
func (t *FailStreamTask) handlesFailure()                {}

func (t *FailStreamTask) Execute(ctx context.Context) error {
	sm, err := t.syncManager.StreamManager(t.stream)
	if err != nil {
		return err
	}
	if !sm.MarkFailed(t.cause) {
		return nil
	}
	t.logger.Error("stream failed", zap.String("stream", t.stream.String()), zap.Error(t.cause))
	metrics.StreamFailures.WithLabelValues(t.stream.String()).Inc()

	if q, err := t.queues.Get(t.stream); err == nil {
		q.Close()
	}

	// the close was claimed by a CloseStream task that failed
	if !sm.ClaimClose() {
		if sm.IsStreamClosed() {
			return nil
		}
		sm.MarkStreamClosed()
		return t.launcher.HandleStreamClosed(ctx, t.stream)
	}

	if loader, ok := t.syncManager.StreamLoader(t.stream); ok {
		if err := loader.Close(ctx, t.cause); err != nil {
			t.logger.Warn("stream loader failed to close after failure",
				zap.String("stream", t.stream.String()), zap.Error(err))
		}
	}
	sm.MarkStreamClosed()
	return t.launcher.HandleStreamClosed(ctx, t.stream)
}

// FailSyncTask aborts the whole sync
type FailSyncTask struct {
	cause       error
	writer      destination.Writer
	syncManager *state.SyncManager
	queues      *queue.StreamQueues
	events      ForceFlushEvents
	launcher    Launcher
	logger      *zap.Logger
}

func (t *FailSyncTask) Name() string    { return TaskFailSync }
func (t *FailSyncTask) handlesFailure() {}

func (t *FailSyncTask) Execute(ctx context.Context) error {
	cause := t.cause
	if cause == nil {
		cause = nebulaerrors.New(nebulaerrors.ErrorTypeSync, "sync failed")
	}
	if !t.syncManager.MarkFailed(cause) {
		return nil
	}
	t.logger.Error("sync failed", zap.Error(cause))

	t.queues.CloseAll()
	if t.events != nil {
		t.events.Close()
	}

	for _, stream := range t.syncManager.Streams() {
		sm, err := t.syncManager.StreamManager(stream)
		if err != nil {
			return err
		}
		if sm.IsStreamClosed() || !sm.MarkFailed(cause) {
			continue
		}
		metrics.StreamFailures.WithLabelValues(stream.String()).Inc()
		if !sm.ClaimClose() {
			sm.MarkStreamClosed()
			continue
		}
		if loader, ok := t.syncManager.StreamLoader(stream); ok {
			if err := loader.Close(ctx, cause); err != nil {
				t.logger.Warn("stream loader failed to close after sync failure",
					zap.String("stream", stream.String()), zap.Error(err))
			}
		}
		sm.MarkStreamClosed()
	}

	if t.syncManager.ClaimTeardown() {
		if err := t.writer.Teardown(ctx, cause); err != nil {
			t.logger.Warn("destination teardown failed after sync failure", zap.Error(err))
		}
	}
	return t.launcher.HandleFailSyncComplete(ctx, cause)
}
