package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/observability"
)

// Failure scopes, used as metric labels
const (
	scopeDropped = "dropped"
	scopeStream  = "stream"
	scopeSync    = "sync"
	scopeHandler = "handler"
)

// ExceptionHandler turns task failures into FailStream or FailSync work.
// Errors offered to a closed queue and cancellations are dropped, errors of
// stream-scoped tasks fail their stream, and everything else fails the sync.
// A stream task error typed ErrorTypeSync fails the sync as well.
type ExceptionHandler struct {
	factory  TaskFactory
	launcher Launcher
	logger   *zap.Logger
}

// NewExceptionHandler creates a handler reporting to launcher
func NewExceptionHandler(factory TaskFactory, launcher Launcher, logger *zap.Logger) *ExceptionHandler {
	return &ExceptionHandler{
		factory:  factory,
		launcher: launcher,
		logger:   logger.With(zap.String("component", "exception_handler")),
	}
}

// WithExceptionHandling wraps task so that its failures are routed
func (h *ExceptionHandler) WithExceptionHandling(task Task) Task {
	if stream, ok := streamOf(task); ok {
		return &wrappedStreamTask{wrappedTask: wrappedTask{inner: task, handler: h}, stream: stream}
	}
	return &wrappedTask{inner: task, handler: h}
}

// HandleSyncFailure fails the sync with err, unless err is a shutdown error
func (h *ExceptionHandler) HandleSyncFailure(ctx context.Context, err error) {
	if err == nil || h.dropped(err) {
		return
	}
	metrics.TaskFailures.WithLabelValues("input", scopeSync).Inc()
	h.runFailure(ctx, h.factory.NewFailSyncTask(h.launcher, err))
}

func (h *ExceptionHandler) handle(ctx context.Context, task Task, err error) {
	name := task.Name()
	log := h.logger.With(zap.String("task", name))

	if h.dropped(err) {
		metrics.TaskFailures.WithLabelValues(name, scopeDropped).Inc()
		log.Debug("dropping task error during shutdown", zap.Error(err))
		return
	}

	if _, ok := task.(failureTask); ok {
		metrics.TaskFailures.WithLabelValues(name, scopeHandler).Inc()
		log.Error("failure handling task failed", zap.Error(err))
		return
	}

	if stream, ok := streamOf(task); ok && !isSyncScoped(err) {
		metrics.TaskFailures.WithLabelValues(name, scopeStream).Inc()
		log.Warn("stream task failed", zap.String("stream", stream.String()), zap.Error(err))
		h.runFailure(ctx, h.factory.NewFailStreamTask(h.launcher, stream, err))
		return
	}

	metrics.TaskFailures.WithLabelValues(name, scopeSync).Inc()
	log.Error("task failed, failing sync", zap.Error(err))
	h.runFailure(ctx, h.factory.NewFailSyncTask(h.launcher, err))
}

// runFailure executes a failure task inline. Cleanup still runs when ctx was
// cancelled.
func (h *ExceptionHandler) runFailure(ctx context.Context, task Task) {
	if err := task.Execute(context.WithoutCancel(ctx)); err != nil && !h.dropped(err) {
		h.logger.Error("failure handling task failed", zap.String("task", task.Name()), zap.Error(err))
	}
}

func (h *ExceptionHandler) dropped(err error) bool {
	return nebulaerrors.IsQueueClosed(err) || errors.Is(err, context.Canceled)
}

// isSyncScoped reports whether the outermost typed error is sync-scoped
func isSyncScoped(err error) bool {
	var e *nebulaerrors.Error
	return errors.As(err, &e) && e.Type == nebulaerrors.ErrorTypeSync
}

type wrappedTask struct {
	inner   Task
	handler *ExceptionHandler
}

func (w *wrappedTask) Name() string { return w.inner.Name() }

// Unwrap returns the wrapped task
func (w *wrappedTask) Unwrap() Task { return w.inner }

func (w *wrappedTask) Execute(ctx context.Context) (err error) {
	stream := ""
	if d, ok := streamOf(w.inner); ok {
		stream = d.String()
	}
	ctx, span := observability.StartTaskSpan(ctx, w.inner.Name(), stream)
	timer := metrics.NewTimer(w.inner.Name())

	defer func() {
		if r := recover(); r != nil {
			err = nebulaerrors.Newf(nebulaerrors.ErrorTypeInternal, "task panicked: %v", r).
				WithDetail("task", w.inner.Name())
		}
		metrics.TaskDuration.WithLabelValues(timer.Name(), metrics.Status(err)).Observe(timer.Stop().Seconds())
		span.EndWithError(err)
		if err != nil {
			w.handler.handle(ctx, w.inner, err)
		}
	}()

	return w.inner.Execute(ctx)
}

type wrappedStreamTask struct {
	wrappedTask
	stream destination.Descriptor
}

func (w *wrappedStreamTask) Stream() destination.Descriptor { return w.stream }
