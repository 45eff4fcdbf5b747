// Package metrics provides observability for nebula-sync using Prometheus
// metrics. It offers collectors for the task engine, the spill layer,
// batch processing and checkpointing.
//
// # Overview
//
// The metrics package provides:
//   - Prometheus-compatible metrics collection
//   - Pre-defined metrics for every task type and lifecycle event
//   - Throughput and latency tracking utilities
//   - An HTTP handler exposing the default registry
//
// # Basic Usage
//
//	// Count an enqueued task
//	metrics.TasksEnqueued.WithLabelValues("spill_to_disk").Inc()
//
//	// Track task latency
//	timer := metrics.NewTimer("process_records")
//	err := task.Execute(ctx)
//	metrics.TaskDuration.WithLabelValues(timer.Name(), metrics.Status(err)).
//	    Observe(timer.Stop().Seconds())
//
// # Metric Types
//
// Counter: Monotonically increasing values (e.g., total spilled bytes)
// Gauge: Values that can go up or down (e.g., in-flight tasks)
// Histogram: Distribution of values (e.g., task durations)
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// StatusSuccess labels a successful operation
	StatusSuccess = "success"
	// StatusFailure labels a failed operation
	StatusFailure = "failure"
)

var (
	// TasksEnqueued tracks tasks accepted by the task runner.
	// Labels: task (task name)
	TasksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_tasks_enqueued_total",
			Help: "Total number of tasks accepted by the task runner",
		},
		[]string{"task"},
	)

	// TasksInFlight tracks tasks currently executing
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nebula_sync_tasks_in_flight",
			Help: "Number of tasks currently executing",
		},
	)

	// TaskDuration tracks the distribution of task execution time in seconds.
	// Labels: task, status (success/failure)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "nebula_sync_task_duration_seconds",
			Help: "Task execution time in seconds",
			Buckets: []float64{
				0.001, // 1ms - bookkeeping tasks
				0.01,  // 10ms
				0.1,   // 100ms
				1,     // 1s - batch processing
				10,    // 10s
				60,    // 1m - large loads
				600,   // 10m - spill tasks live for the whole stream
			},
		},
		[]string{"task", "status"},
	)

	// TaskFailures tracks task errors by how they were routed.
	// Labels: task, scope (queue_closed/stream/sync/handler)
	TaskFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_task_failures_total",
			Help: "Total number of failed tasks by failure scope",
		},
		[]string{"task", "scope"},
	)

	// RecordsRead tracks records accepted from the input
	RecordsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_records_read_total",
			Help: "Total number of records read from the input",
		},
		[]string{"stream"},
	)

	// SpilledFiles tracks spill files handed off for processing
	SpilledFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_spilled_files_total",
			Help: "Total number of spill files handed off for processing",
		},
		[]string{"stream"},
	)

	// SpilledBytes tracks record bytes written to spill files
	SpilledBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_spilled_bytes_total",
			Help: "Total record bytes written to spill files",
		},
		[]string{"stream"},
	)

	// BatchesProcessed tracks batch state updates seen by the launcher.
	// Labels: stream, state (staged/persisted/complete)
	BatchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_batches_total",
			Help: "Total number of batch state updates",
		},
		[]string{"stream", "state"},
	)

	// CheckpointsFlushed tracks checkpoint state messages emitted
	CheckpointsFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_checkpoints_flushed_total",
			Help: "Total number of checkpoints emitted",
		},
		[]string{"stream"},
	)

	// ForceFlushEvents tracks timed forced flush events published
	ForceFlushEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nebula_sync_force_flush_events_total",
			Help: "Total number of forced checkpoint flush events",
		},
	)

	// StreamFailures tracks streams that ended in failure
	StreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nebula_sync_stream_failures_total",
			Help: "Total number of failed streams",
		},
		[]string{"stream"},
	)

	// Throughput tracks records per second per stream
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nebula_sync_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"stream"},
	)
)

// Handler returns the HTTP handler serving the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to a status label
func Status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation.
// The timer can be stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks throughput (records per second) over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Records processed since last reset
	lastReset time.Time // Time of last reset
	stream    string
}

// NewThroughputTracker creates a new throughput tracker for a stream.
//
// Example:
//
//	tracker := metrics.NewThroughputTracker("public.users")
//	for rec := range records {
//	    tracker.Increment(1)
//	}
//	throughput := tracker.GetAndReset()
func NewThroughputTracker(stream string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		stream:    stream,
	}
}

// Increment adds n to the record count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current throughput (records/second),
// updates the Prometheus metric, resets the counter, and returns
// the calculated throughput. Safe for concurrent use.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	// Reset for next period
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.stream).Set(throughput)

	return throughput
}
