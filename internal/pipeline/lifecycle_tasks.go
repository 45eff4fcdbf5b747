package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// SetupTask prepares the destination before any stream opens
type SetupTask struct {
	writer   destination.Writer
	launcher Launcher
}

func (t *SetupTask) Name() string { return TaskSetup }

func (t *SetupTask) Execute(ctx context.Context) error {
	if err := t.writer.Setup(ctx); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeSync, "destination setup failed")
	}
	return t.launcher.HandleSetupComplete(ctx)
}

// OpenStreamTask creates and starts the loader of one stream. A stream that
// fails first is never opened, and a loader whose stream fails while it
// starts is closed with the failure instead of being registered.
type OpenStreamTask struct {
	stream      destination.Descriptor
	catalog     destination.Catalog
	writer      destination.Writer
	syncManager *state.SyncManager
	launcher    Launcher
	logger      *zap.Logger
}

func (t *OpenStreamTask) Name() string                   { return TaskOpenStream }
func (t *OpenStreamTask) Stream() destination.Descriptor { return t.stream }

func (t *OpenStreamTask) Execute(ctx context.Context) error {
	sm, err := t.syncManager.StreamManager(t.stream)
	if err != nil {
		return err
	}
	if sm.Failure() != nil || sm.IsStreamClosed() {
		t.logger.Debug("stream ended before it opened", zap.String("stream", t.stream.String()))
		return nil
	}

	stream, ok := t.catalog.Find(t.stream)
	if !ok {
		stream = destination.Stream{Descriptor: t.stream}
	}
	loader, err := t.writer.CreateStreamLoader(stream)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeStream, "failed to create stream loader").
			WithDetail("stream", t.stream.String())
	}
	if err := loader.Start(ctx); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeStream, "failed to start stream loader").
			WithDetail("stream", t.stream.String())
	}
	if err := t.syncManager.RegisterStartedStreamLoader(t.stream, loader); err != nil {
		cause := sm.Failure()
		if cause == nil {
			return err
		}
		t.logger.Info("stream failed while its loader started, closing loader",
			zap.String("stream", t.stream.String()))
		if closeErr := loader.Close(ctx, cause); closeErr != nil {
			t.logger.Warn("stream loader failed to close after failure",
				zap.String("stream", t.stream.String()), zap.Error(closeErr))
		}
		return nil
	}
	return t.launcher.HandleStreamStarted(ctx, t.stream)
}

// CloseStreamTask closes the loader of a stream whose batches all completed
type CloseStreamTask struct {
	stream      destination.Descriptor
	syncManager *state.SyncManager
	launcher    Launcher
}

func (t *CloseStreamTask) Name() string                   { return TaskCloseStream }
func (t *CloseStreamTask) Stream() destination.Descriptor { return t.stream }

func (t *CloseStreamTask) Execute(ctx context.Context) error {
	sm, err := t.syncManager.StreamManager(t.stream)
	if err != nil {
		return err
	}
	loader, err := t.syncManager.GetOrAwaitStreamLoader(ctx, t.stream)
	if err != nil {
		return err
	}
	if err := loader.Close(ctx, nil); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeStream, "failed to close stream loader").
			WithDetail("stream", t.stream.String())
	}
	sm.MarkStreamClosed()
	return t.launcher.HandleStreamClosed(ctx, t.stream)
}

// TeardownTask tears the destination down once every stream is closed. It
// is enqueued after each stream close and is a no-op until the last one.
type TeardownTask struct {
	writer      destination.Writer
	syncManager *state.SyncManager
	launcher    Launcher
}

func (t *TeardownTask) Name() string { return TaskTeardown }

func (t *TeardownTask) Execute(ctx context.Context) error {
	if !t.syncManager.AllStreamsClosed() || !t.syncManager.ClaimTeardown() {
		return nil
	}
	if err := t.writer.Teardown(ctx, t.syncManager.StreamFailures()); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeSync, "destination teardown failed")
	}
	return t.launcher.HandleTeardownComplete(ctx)
}
