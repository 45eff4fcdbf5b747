package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// Launcher receives lifecycle events from tasks and schedules follow-up work.
// All methods are safe for concurrent use.
type Launcher interface {
	HandleSetupComplete(ctx context.Context) error
	HandleStreamStarted(ctx context.Context, stream destination.Descriptor) error
	HandleNewSpilledFile(ctx context.Context, stream destination.Descriptor, env destination.BatchEnvelope[*destination.SpilledFile]) error
	HandleNewBatch(ctx context.Context, stream destination.Descriptor, env destination.BatchEnvelope[destination.Batch]) error
	HandleStreamClosed(ctx context.Context, stream destination.Descriptor) error
	HandleTeardownComplete(ctx context.Context) error
	HandleFailSyncComplete(ctx context.Context, cause error) error
	ScheduleNextForceFlushAttempt(ctx context.Context, delay time.Duration) error
	// Stopped is closed once the launcher stops scheduling work
	Stopped() <-chan struct{}
}

// CheckpointFlusher emits checkpoints that became durable
type CheckpointFlusher interface {
	FlushReadyCheckpointMessages(ctx context.Context) error
}

// LauncherConfig holds the launcher settings
type LauncherConfig struct {
	// MaxCheckpointFlushInterval enables timed forced flushes when positive
	MaxCheckpointFlushInterval time.Duration
}

// DestinationTaskLauncher is the Launcher of a sync run. It owns the terminal
// result of the sync.
type DestinationTaskLauncher struct {
	cfg         LauncherConfig
	runner      Enqueuer
	factory     TaskFactory
	syncManager *state.SyncManager
	checkpoints CheckpointFlusher
	handler     *ExceptionHandler
	logger      *zap.Logger
	stopRunner  func()

	stopOnce sync.Once
	stopped  chan struct{}

	finishOnce sync.Once
	done       chan struct{}
	err        error
}

// NewDestinationTaskLauncher creates a launcher enqueueing on runner. When
// runner is a *TaskRunner it is closed on Stop.
func NewDestinationTaskLauncher(
	cfg LauncherConfig,
	runner Enqueuer,
	factory TaskFactory,
	syncManager *state.SyncManager,
	checkpoints CheckpointFlusher,
	logger *zap.Logger,
) *DestinationTaskLauncher {
	l := &DestinationTaskLauncher{
		cfg:         cfg,
		runner:      runner,
		factory:     factory,
		syncManager: syncManager,
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("component", "task_launcher")),
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	if closer, ok := runner.(interface{ Close() }); ok {
		l.stopRunner = closer.Close
	}
	l.handler = NewExceptionHandler(factory, l, logger)
	return l
}

// ExceptionHandler returns the handler wrapping every enqueued task
func (l *DestinationTaskLauncher) ExceptionHandler() *ExceptionHandler {
	return l.handler
}

func (l *DestinationTaskLauncher) enqueue(task Task) error {
	return l.runner.Enqueue(l.handler.WithExceptionHandling(task))
}

// Start schedules setup, one spill task per stream and the first timed flush
func (l *DestinationTaskLauncher) Start(ctx context.Context) error {
	streams := l.syncManager.Streams()
	l.logger.Info("starting sync tasks", zap.Int("streams", len(streams)))

	if err := l.enqueue(l.factory.NewSetupTask(l)); err != nil {
		return err
	}
	for _, stream := range streams {
		if err := l.enqueue(l.factory.NewSpillToDiskTask(l, stream)); err != nil {
			return err
		}
	}
	if l.cfg.MaxCheckpointFlushInterval > 0 {
		return l.ScheduleNextForceFlushAttempt(ctx, l.cfg.MaxCheckpointFlushInterval)
	}
	return nil
}

// HandleSetupComplete opens every stream. An empty catalog goes straight to
// teardown.
func (l *DestinationTaskLauncher) HandleSetupComplete(ctx context.Context) error {
	streams := l.syncManager.Streams()
	if len(streams) == 0 {
		return l.enqueue(l.factory.NewTeardownTask(l))
	}
	for _, stream := range streams {
		if err := l.enqueue(l.factory.NewOpenStreamTask(l, stream)); err != nil {
			return err
		}
	}
	return nil
}

// HandleStreamStarted marks stream started
func (l *DestinationTaskLauncher) HandleStreamStarted(ctx context.Context, stream destination.Descriptor) error {
	sm, err := l.syncManager.StreamManager(stream)
	if err != nil {
		return err
	}
	sm.MarkStreamStarted()
	l.logger.Info("stream started", zap.String("stream", stream.String()))
	return nil
}

// HandleNewSpilledFile counts the file as an outstanding batch of stream and
// schedules its processing
func (l *DestinationTaskLauncher) HandleNewSpilledFile(ctx context.Context, stream destination.Descriptor, env destination.BatchEnvelope[*destination.SpilledFile]) error {
	sm, err := l.syncManager.StreamManager(stream)
	if err != nil {
		return err
	}
	if err := sm.BatchIssued(env.Batch.EndOfStream); err != nil {
		return err
	}
	l.logger.Debug("new spilled file",
		zap.String("stream", stream.String()),
		zap.String("path", env.Batch.Path),
		zap.Int64("records", env.Batch.RecordCount),
		zap.Int64("size_bytes", env.Batch.TotalSizeBytes),
		zap.Bool("end_of_stream", env.Batch.EndOfStream))
	return l.enqueue(l.factory.NewProcessRecordsTask(l, stream, env))
}

// HandleNewBatch records a batch result, flushes checkpoints it made durable,
// and schedules either more processing or the close of a completed stream.
func (l *DestinationTaskLauncher) HandleNewBatch(ctx context.Context, stream destination.Descriptor, env destination.BatchEnvelope[destination.Batch]) error {
	sm, err := l.syncManager.StreamManager(stream)
	if err != nil {
		return err
	}
	if err := sm.UpdateBatchState(env); err != nil {
		return err
	}
	batchState := env.Batch.State()
	metrics.BatchesProcessed.WithLabelValues(stream.String(), batchState.String()).Inc()
	if batchState == destination.Complete {
		if err := sm.BatchCompleted(); err != nil {
			return err
		}
	}

	if err := l.checkpoints.FlushReadyCheckpointMessages(ctx); err != nil {
		return err
	}

	if sm.Failure() != nil {
		l.logger.Debug("dropping batch of failed stream", zap.String("stream", stream.String()))
		return nil
	}

	if batchState != destination.Complete {
		return l.enqueue(l.factory.NewProcessBatchTask(l, stream, env))
	}

	if sm.ClaimCloseIfComplete() {
		l.logger.Info("all batches complete, closing stream", zap.String("stream", stream.String()))
		return l.enqueue(l.factory.NewCloseStreamTask(l, stream))
	}
	return nil
}

// HandleStreamClosed schedules a teardown attempt. Teardown only runs once
// every stream is closed.
func (l *DestinationTaskLauncher) HandleStreamClosed(ctx context.Context, stream destination.Descriptor) error {
	l.logger.Info("stream closed", zap.String("stream", stream.String()))
	return l.enqueue(l.factory.NewTeardownTask(l))
}

// HandleTeardownComplete ends the sync. The result is nil, or the joined
// failures of the streams that failed.
func (l *DestinationTaskLauncher) HandleTeardownComplete(ctx context.Context) error {
	result := l.syncManager.StreamFailures()
	if result != nil {
		result = nebulaerrors.Wrap(result, nebulaerrors.ErrorTypeStream, "one or more streams failed")
	}
	l.finish(result)
	return nil
}

// HandleFailSyncComplete ends the sync with cause
func (l *DestinationTaskLauncher) HandleFailSyncComplete(ctx context.Context, cause error) error {
	if cause == nil {
		cause = nebulaerrors.New(nebulaerrors.ErrorTypeSync, "sync failed")
	}
	l.finish(cause)
	return nil
}

// ScheduleNextForceFlushAttempt enqueues the next timed flush, which waits
// delay before checking the last flush time
func (l *DestinationTaskLauncher) ScheduleNextForceFlushAttempt(ctx context.Context, delay time.Duration) error {
	return l.enqueue(l.factory.NewTimedFlushTask(l, delay))
}

func (l *DestinationTaskLauncher) finish(err error) {
	l.finishOnce.Do(func() {
		l.err = err
		if err != nil {
			l.logger.Error("sync finished with failure", zap.Error(err))
		} else {
			l.logger.Info("sync finished")
		}
		close(l.done)
		l.Stop()
	})
}

// Stop closes the runner and releases waiting timed flush tasks. It is
// idempotent.
func (l *DestinationTaskLauncher) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
		if l.stopRunner != nil {
			l.stopRunner()
		}
	})
}

// Stopped is closed by Stop
func (l *DestinationTaskLauncher) Stopped() <-chan struct{} {
	return l.stopped
}

// Done is closed once the sync reached a terminal result
func (l *DestinationTaskLauncher) Done() <-chan struct{} {
	return l.done
}

// Err returns the terminal result. It is only meaningful after Done.
func (l *DestinationTaskLauncher) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

var _ Launcher = (*DestinationTaskLauncher)(nil)
