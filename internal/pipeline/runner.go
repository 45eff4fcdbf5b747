package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// TaskRunner executes every enqueued task on its own goroutine. The queue is
// unbounded and dispatch never waits for a running task. Close is the only
// way to stop it: tasks accepted before Close still run, later ones are
// rejected with ErrQueueClosed.
type TaskRunner struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending []Task
	closed  bool
	wake    chan struct{}

	wg sync.WaitGroup
}

// NewTaskRunner creates an idle runner. Call Run to start dispatching.
func NewTaskRunner(logger *zap.Logger) *TaskRunner {
	return &TaskRunner{
		logger: logger.With(zap.String("component", "task_runner")),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue accepts task for execution. It never blocks.
func (r *TaskRunner) Enqueue(task Task) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nebulaerrors.ErrQueueClosed
	}
	r.pending = append(r.pending, task)
	r.mu.Unlock()

	metrics.TasksEnqueued.WithLabelValues(task.Name()).Inc()
	r.signal()
	return nil
}

// Close stops accepting tasks. It does not interrupt running tasks and is
// idempotent.
func (r *TaskRunner) Close() {
	r.mu.Lock()
	already := r.closed
	r.closed = true
	r.mu.Unlock()

	if !already {
		r.logger.Debug("task runner closed")
	}
	r.signal()
}

// IsClosed reports whether Close was called
func (r *TaskRunner) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *TaskRunner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run dispatches tasks until the runner is closed and drained, then waits for
// every dispatched task to finish. Cancelling ctx closes the runner.
func (r *TaskRunner) Run(ctx context.Context) error {
	r.logger.Debug("task runner started")

	for {
		r.mu.Lock()
		batch := r.pending
		r.pending = nil
		closed := r.closed
		r.mu.Unlock()

		for _, task := range batch {
			r.dispatch(ctx, task)
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			break
		}

		select {
		case <-r.wake:
		case <-ctx.Done():
			r.Close()
		}
	}

	r.wg.Wait()
	r.logger.Debug("task runner stopped")
	return nil
}

func (r *TaskRunner) dispatch(ctx context.Context, task Task) {
	r.wg.Add(1)
	metrics.TasksInFlight.Inc()
	go func() {
		defer r.wg.Done()
		defer metrics.TasksInFlight.Dec()

		if err := task.Execute(ctx); err != nil {
			r.logger.Debug("task returned error", zap.String("task", task.Name()), zap.Error(err))
		}
	}()
}
