package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
)

var (
	users  = destination.Descriptor{Namespace: "public", Name: "users"}
	orders = destination.Descriptor{Name: "orders"}
)

func testCatalog(streams ...destination.Descriptor) destination.Catalog {
	catalog := destination.Catalog{}
	for _, d := range streams {
		catalog.Streams = append(catalog.Streams, destination.Stream{Descriptor: d})
	}
	return catalog
}

// fakeTask records its execution and returns err
type fakeTask struct {
	name   string
	stream *destination.Descriptor
	err    error
	run    func(ctx context.Context) error

	mu       sync.Mutex
	executed int
}

func (t *fakeTask) Name() string { return t.name }

func (t *fakeTask) Execute(ctx context.Context) error {
	t.mu.Lock()
	t.executed++
	t.mu.Unlock()
	if t.run != nil {
		return t.run(ctx)
	}
	return t.err
}

func (t *fakeTask) Executions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executed
}

type fakeStreamTask struct {
	*fakeTask
}

func (t fakeStreamTask) Stream() destination.Descriptor { return *t.fakeTask.stream }

func newFakeTask(name string, stream *destination.Descriptor) Task {
	t := &fakeTask{name: name, stream: stream}
	if stream != nil {
		return fakeStreamTask{t}
	}
	return t
}

// createdTask is one factory call
type createdTask struct {
	name   string
	stream destination.Descriptor
	cause  error
	delay  time.Duration
	task   *fakeTask
}

// recordingFactory creates fakeTasks and records every call
type recordingFactory struct {
	mu      sync.Mutex
	created []createdTask
	// failErr is returned by FailStream / FailSync tasks
	failErr error
}

func (f *recordingFactory) record(name string, stream *destination.Descriptor, cause error, delay time.Duration) Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	inner := &fakeTask{name: name, stream: stream}
	if name == TaskFailStream || name == TaskFailSync {
		inner.err = f.failErr
	}
	c := createdTask{name: name, cause: cause, delay: delay, task: inner}
	if stream != nil {
		c.stream = *stream
	}
	f.created = append(f.created, c)

	var task Task = inner
	if stream != nil {
		task = fakeStreamTask{inner}
	}
	if name == TaskFailStream {
		return failingStream{task.(fakeStreamTask)}
	}
	if name == TaskFailSync {
		return failingSync{inner}
	}
	return task
}

type failingStream struct{ fakeStreamTask }

func (failingStream) handlesFailure() {}

type failingSync struct{ *fakeTask }

func (failingSync) handlesFailure() {}

func (f *recordingFactory) Created() []createdTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]createdTask, len(f.created))
	copy(out, f.created)
	return out
}

func (f *recordingFactory) NewSetupTask(l Launcher) Task {
	return f.record(TaskSetup, nil, nil, 0)
}

func (f *recordingFactory) NewOpenStreamTask(l Launcher, stream destination.Descriptor) Task {
	return f.record(TaskOpenStream, &stream, nil, 0)
}

func (f *recordingFactory) NewSpillToDiskTask(l Launcher, stream destination.Descriptor) Task {
	return f.record(TaskSpillToDisk, &stream, nil, 0)
}

func (f *recordingFactory) NewProcessRecordsTask(l Launcher, stream destination.Descriptor, env destination.BatchEnvelope[*destination.SpilledFile]) Task {
	return f.record(TaskProcessRecords, &stream, nil, 0)
}

func (f *recordingFactory) NewProcessBatchTask(l Launcher, stream destination.Descriptor, env destination.BatchEnvelope[destination.Batch]) Task {
	return f.record(TaskProcessBatch, &stream, nil, 0)
}

func (f *recordingFactory) NewCloseStreamTask(l Launcher, stream destination.Descriptor) Task {
	return f.record(TaskCloseStream, &stream, nil, 0)
}

func (f *recordingFactory) NewTeardownTask(l Launcher) Task {
	return f.record(TaskTeardown, nil, nil, 0)
}

func (f *recordingFactory) NewTimedFlushTask(l Launcher, delay time.Duration) Task {
	return f.record(TaskTimedForcedCheckpointFlush, nil, nil, delay)
}

func (f *recordingFactory) NewFailStreamTask(l Launcher, stream destination.Descriptor, cause error) Task {
	return f.record(TaskFailStream, &stream, cause, 0)
}

func (f *recordingFactory) NewFailSyncTask(l Launcher, cause error) Task {
	return f.record(TaskFailSync, nil, cause, 0)
}

// recordingEnqueuer collects enqueued tasks without running them
type recordingEnqueuer struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
}

func (e *recordingEnqueuer) Enqueue(task Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return nil
}

func (e *recordingEnqueuer) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

func (e *recordingEnqueuer) Tasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Task, len(e.tasks))
	copy(out, e.tasks)
	return out
}

func (e *recordingEnqueuer) Names() []string {
	var names []string
	for _, t := range e.Tasks() {
		names = append(names, t.Name())
	}
	return names
}

type countingFlusher struct {
	mu    sync.Mutex
	count int
	err   error
}

func (f *countingFlusher) FlushReadyCheckpointMessages(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return f.err
}

func (f *countingFlusher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// recordingLauncher records the events tasks report
type recordingLauncher struct {
	mu           sync.Mutex
	spilled      []destination.BatchEnvelope[*destination.SpilledFile]
	batches      []destination.BatchEnvelope[destination.Batch]
	closed       []destination.Descriptor
	reschedules  []time.Duration
	setup        bool
	started      []destination.Descriptor
	teardownDone bool
	failSyncErr  error
	spillErr     error
	stopped      chan struct{}
}

func newRecordingLauncher() *recordingLauncher {
	return &recordingLauncher{stopped: make(chan struct{})}
}

func (l *recordingLauncher) HandleSetupComplete(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setup = true
	return nil
}

func (l *recordingLauncher) HandleStreamStarted(_ context.Context, stream destination.Descriptor) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, stream)
	return nil
}

func (l *recordingLauncher) HandleNewSpilledFile(_ context.Context, _ destination.Descriptor, env destination.BatchEnvelope[*destination.SpilledFile]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spillErr != nil {
		return l.spillErr
	}
	l.spilled = append(l.spilled, env)
	return nil
}

func (l *recordingLauncher) HandleNewBatch(_ context.Context, _ destination.Descriptor, env destination.BatchEnvelope[destination.Batch]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = append(l.batches, env)
	return nil
}

func (l *recordingLauncher) HandleStreamClosed(_ context.Context, stream destination.Descriptor) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, stream)
	return nil
}

func (l *recordingLauncher) HandleTeardownComplete(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownDone = true
	return nil
}

func (l *recordingLauncher) HandleFailSyncComplete(_ context.Context, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failSyncErr = cause
	return nil
}

func (l *recordingLauncher) ScheduleNextForceFlushAttempt(_ context.Context, delay time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reschedules = append(l.reschedules, delay)
	return nil
}

func (l *recordingLauncher) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *recordingLauncher) Spilled() []destination.BatchEnvelope[*destination.SpilledFile] {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]destination.BatchEnvelope[*destination.SpilledFile], len(l.spilled))
	copy(out, l.spilled)
	return out
}

func (l *recordingLauncher) Reschedules() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]time.Duration, len(l.reschedules))
	copy(out, l.reschedules)
	return out
}

// recordingEvents is a checkpoint.EventQueue recording published events
type recordingEvents struct {
	mu     sync.Mutex
	events []checkpoint.ForceFlushEvent
}

func (e *recordingEvents) Publish(_ context.Context, event checkpoint.ForceFlushEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEvents) Events() []checkpoint.ForceFlushEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]checkpoint.ForceFlushEvent, len(e.events))
	copy(out, e.events)
	return out
}

// fixedTracker is a CheckpointTracker with settable values
type fixedTracker struct {
	mu        sync.Mutex
	lastFlush time.Time
	indexes   map[destination.Descriptor]int64
}

func (t *fixedTracker) LastFlushTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFlush
}

func (t *fixedTracker) CheckpointIndexes() map[destination.Descriptor]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[destination.Descriptor]int64, len(t.indexes))
	for d, i := range t.indexes {
		out[d] = i
	}
	return out
}
