package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/internal/clocks"
	"github.com/ajitpratap0/nebula-sync/internal/queue"
	"github.com/ajitpratap0/nebula-sync/internal/spill"
	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
)

// TaskFactory creates the tasks the launcher schedules. Every task reports
// back to the launcher it was created for.
type TaskFactory interface {
	NewSetupTask(l Launcher) Task
	NewOpenStreamTask(l Launcher, stream destination.Descriptor) Task
	NewSpillToDiskTask(l Launcher, stream destination.Descriptor) Task
	NewProcessRecordsTask(l Launcher, stream destination.Descriptor, env destination.BatchEnvelope[*destination.SpilledFile]) Task
	NewProcessBatchTask(l Launcher, stream destination.Descriptor, env destination.BatchEnvelope[destination.Batch]) Task
	NewCloseStreamTask(l Launcher, stream destination.Descriptor) Task
	NewTeardownTask(l Launcher) Task
	NewTimedFlushTask(l Launcher, delay time.Duration) Task
	NewFailStreamTask(l Launcher, stream destination.Descriptor, cause error) Task
	NewFailSyncTask(l Launcher, cause error) Task
}

// CheckpointTracker is the view of the checkpoint manager used by the timed
// flush task
type CheckpointTracker interface {
	LastFlushTime() time.Time
	CheckpointIndexes() map[destination.Descriptor]int64
}

// ForceFlushEvents is the event side used by spill and failure tasks
type ForceFlushEvents interface {
	checkpoint.EventQueue
	Subscribe(d destination.Descriptor) <-chan checkpoint.ForceFlushEvent
	Unsubscribe(d destination.Descriptor)
	Close()
}

// FactoryConfig holds the task settings
type FactoryConfig struct {
	// RecordBatchSizeBytes is the spill file hand-off threshold
	RecordBatchSizeBytes int64
	// MaxCheckpointFlushInterval is the longest time between checkpoint flushes
	MaxCheckpointFlushInterval time.Duration
}

// DefaultTaskFactory builds the production tasks of a sync
type DefaultTaskFactory struct {
	Config      FactoryConfig
	Writer      destination.Writer
	Catalog     destination.Catalog
	SyncManager *state.SyncManager
	Queues      *queue.StreamQueues
	Spill       spill.Provider
	Checkpoints CheckpointTracker
	Events      ForceFlushEvents
	Clock       clocks.Clock
	Logger      *zap.Logger
}

func (f *DefaultTaskFactory) NewSetupTask(l Launcher) Task {
	return &SetupTask{writer: f.Writer, launcher: l}
}

func (f *DefaultTaskFactory) NewOpenStreamTask(l Launcher, stream destination.Descriptor) Task {
	return &OpenStreamTask{
		stream:      stream,
		catalog:     f.Catalog,
		writer:      f.Writer,
		syncManager: f.SyncManager,
		launcher:    l,
		logger:      f.Logger,
	}
}

func (f *DefaultTaskFactory) NewSpillToDiskTask(l Launcher, stream destination.Descriptor) Task {
	return &SpillToDiskTask{
		stream:         stream,
		queues:         f.Queues,
		provider:       f.Spill,
		events:         f.Events,
		batchSizeBytes: f.Config.RecordBatchSizeBytes,
		launcher:       l,
		logger:         f.Logger.With(zap.String("task", TaskSpillToDisk), zap.String("stream", stream.String())),
	}
}

func (f *DefaultTaskFactory) NewProcessRecordsTask(l Launcher, stream destination.Descriptor, env destination.BatchEnvelope[*destination.SpilledFile]) Task {
	return &ProcessRecordsTask{
		stream:      stream,
		env:         env,
		provider:    f.Spill,
		syncManager: f.SyncManager,
		launcher:    l,
		logger:      f.Logger,
	}
}

func (f *DefaultTaskFactory) NewProcessBatchTask(l Launcher, stream destination.Descriptor, env destination.BatchEnvelope[destination.Batch]) Task {
	return &ProcessBatchTask{
		stream:      stream,
		env:         env,
		syncManager: f.SyncManager,
		launcher:    l,
	}
}

func (f *DefaultTaskFactory) NewCloseStreamTask(l Launcher, stream destination.Descriptor) Task {
	return &CloseStreamTask{stream: stream, syncManager: f.SyncManager, launcher: l}
}

func (f *DefaultTaskFactory) NewTeardownTask(l Launcher) Task {
	return &TeardownTask{writer: f.Writer, syncManager: f.SyncManager, launcher: l}
}

func (f *DefaultTaskFactory) NewTimedFlushTask(l Launcher, delay time.Duration) Task {
	return &TimedForcedCheckpointFlushTask{
		delay:       delay,
		maxInterval: f.Config.MaxCheckpointFlushInterval,
		clock:       f.Clock,
		checkpoints: f.Checkpoints,
		events:      f.Events,
		launcher:    l,
		logger:      f.Logger,
	}
}

func (f *DefaultTaskFactory) NewFailStreamTask(l Launcher, stream destination.Descriptor, cause error) Task {
	return &FailStreamTask{
		stream:      stream,
		cause:       cause,
		syncManager: f.SyncManager,
		queues:      f.Queues,
		launcher:    l,
		logger:      f.Logger,
	}
}

func (f *DefaultTaskFactory) NewFailSyncTask(l Launcher, cause error) Task {
	return &FailSyncTask{
		cause:       cause,
		writer:      f.Writer,
		syncManager: f.SyncManager,
		queues:      f.Queues,
		events:      f.Events,
		launcher:    l,
		logger:      f.Logger,
	}
}

var _ TaskFactory = (*DefaultTaskFactory)(nil)
