// Package pipeline is the task engine of nebula-sync. It drives every stream
// of a sync from local spill files through the connector's StreamLoader to
// completion, as a set of small single-use tasks executed concurrently by one
// TaskRunner.
//
// # Architecture
//
// The DestinationTaskLauncher reacts to lifecycle events and enqueues the next
// tasks:
//
//	Start               -> Setup, SpillToDisk (per stream), TimedForcedCheckpointFlush
//	HandleSetupComplete -> OpenStream (per stream)
//	HandleNewSpilledFile-> ProcessRecords
//	HandleNewBatch      -> ProcessBatch, or CloseStream once the stream is complete
//	HandleStreamClosed  -> Teardown
//
// Every enqueued task is wrapped by the ExceptionHandler, which turns task
// failures into FailStream or FailSync tasks.
//
// # Basic Usage
//
//	s, err := pipeline.NewSync(cfg, catalog, writer, os.Stdin, checkpoint.NewStdoutOutput(os.Stdout), logger)
//	if err != nil {
//	    return err
//	}
//	err = s.Run(ctx)
package pipeline

import (
	"context"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
)

// Task names, used in logs, spans and metric labels
const (
	TaskSetup                      = "setup"
	TaskOpenStream                 = "open_stream"
	TaskSpillToDisk                = "spill_to_disk"
	TaskProcessRecords             = "process_records"
	TaskProcessBatch               = "process_batch"
	TaskCloseStream                = "close_stream"
	TaskTeardown                   = "teardown"
	TaskTimedForcedCheckpointFlush = "timed_forced_checkpoint_flush"
	TaskFailStream                 = "fail_stream"
	TaskFailSync                   = "fail_sync"
)

// Task is a single-use unit of work
type Task interface {
	Name() string
	Execute(ctx context.Context) error
}

// StreamTask is a task scoped to one stream. Its failures fail only that
// stream.
type StreamTask interface {
	Task
	Stream() destination.Descriptor
}

// failureTask marks FailStream and FailSync tasks, whose own errors are only
// logged
type failureTask interface {
	Task
	handlesFailure()
}

// Enqueuer accepts tasks for execution
type Enqueuer interface {
	Enqueue(task Task) error
}

// streamOf returns the stream of a stream-scoped task
func streamOf(task Task) (destination.Descriptor, bool) {
	if st, ok := task.(StreamTask); ok {
		return st.Stream(), true
	}
	return destination.Descriptor{}, false
}
