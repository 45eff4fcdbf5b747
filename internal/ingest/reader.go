// Package ingest reads the input protocol of a sync. It assigns every record
// its per-stream index, routes records to the stream queues, registers state
// messages as checkpoints and ends streams on COMPLETE status traces.
package ingest

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/internal/queue"
	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// throughputInterval is how often the per-stream throughput gauge is refreshed
const throughputInterval = 10 * time.Second

// CheckpointRegistrar accepts stream checkpoints
type CheckpointRegistrar interface {
	AddStreamCheckpoint(stream destination.Descriptor, index int64, streamState json.RawMessage) error
}

// Stats summarizes a finished read
type Stats struct {
	Lines       int64
	Records     int64
	Dropped     int64
	States      int64
	StreamsDone int64
}

// Reader consumes one input stream of protocol lines
type Reader struct {
	input       io.Reader
	syncManager *state.SyncManager
	queues      *queue.StreamQueues
	checkpoints CheckpointRegistrar
	logger      *zap.Logger

	stats      Stats
	trackers   map[destination.Descriptor]*metrics.ThroughputTracker
	lastReport time.Time
}

// NewReader creates a reader of input
func NewReader(
	input io.Reader,
	syncManager *state.SyncManager,
	queues *queue.StreamQueues,
	checkpoints CheckpointRegistrar,
	logger *zap.Logger,
) *Reader {
	return &Reader{
		input:       input,
		syncManager: syncManager,
		queues:      queues,
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("component", "input_reader")),
		trackers:    make(map[destination.Descriptor]*metrics.ThroughputTracker),
	}
}

// Stats returns the counters of the read. It is only stable after Run.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Run reads until EOF. Streams without a COMPLETE status are ended at EOF.
// Malformed lines and records for unknown or ended streams are data errors.
func (r *Reader) Run(ctx context.Context) error {
	lines := json.NewLineReader(r.input)
	r.lastReport = time.Now()

	for lines.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.stats.Lines++

		var msg Message
		if err := lines.Decode(&msg); err != nil {
			return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "malformed input message").
				WithDetail("line", lines.LineNumber())
		}

		var err error
		switch msg.Type {
		case checkpoint.MessageTypeRecord:
			err = r.handleRecord(ctx, msg.Record, int64(len(lines.Bytes())))
		case checkpoint.MessageTypeState:
			err = r.handleState(msg.State)
		case checkpoint.MessageTypeTrace:
			err = r.handleTrace(ctx, msg.Trace)
		default:
			r.logger.Debug("ignoring input message", zap.String("type", msg.Type), zap.Int64("line", lines.LineNumber()))
		}
		if err != nil {
			if e, ok := err.(*nebulaerrors.Error); ok {
				return e.WithDetail("line", lines.LineNumber())
			}
			return err
		}
		r.reportThroughput(false)
	}
	if err := lines.Err(); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "failed to read input").
			WithDetail("line", lines.LineNumber())
	}

	r.reportThroughput(true)
	return r.endOpenStreams(ctx)
}

func (r *Reader) handleRecord(ctx context.Context, payload *RecordPayload, sizeBytes int64) error {
	if payload == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeData, "RECORD message without record")
	}
	stream := destination.Descriptor{Namespace: payload.Namespace, Name: payload.Stream}
	sm, err := r.syncManager.StreamManager(stream)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "record for a stream outside the catalog").
			WithDetail("stream", stream.String())
	}
	if sm.Failure() != nil {
		r.stats.Dropped++
		return nil
	}
	if sm.EndOfStreamRead() {
		return nebulaerrors.New(nebulaerrors.ErrorTypeData, "record after stream completed").
			WithDetail("stream", stream.String())
	}

	q, err := r.queues.Get(stream)
	if err != nil {
		return err
	}
	index := sm.CountRecordIn()
	rec := destination.Record{
		Namespace: payload.Namespace,
		Stream:    payload.Stream,
		Data:      append(json.RawMessage(nil), payload.Data...),
		EmittedAt: payload.EmittedAt,
	}
	if err := q.Publish(ctx, queue.StreamRecord{Index: index, SizeBytes: sizeBytes, Record: rec}); err != nil {
		if nebulaerrors.IsQueueClosed(err) {
			r.stats.Dropped++
			return nil
		}
		return err
	}

	r.stats.Records++
	metrics.RecordsRead.WithLabelValues(stream.String()).Inc()
	r.tracker(stream).Increment(1)
	return nil
}

func (r *Reader) handleState(payload *checkpoint.State) error {
	if payload == nil {
		return nebulaerrors.New(nebulaerrors.ErrorTypeData, "STATE message without state")
	}
	if payload.Type != checkpoint.StateTypeStream || payload.Stream == nil {
		r.logger.Debug("ignoring non-stream state", zap.String("state_type", payload.Type))
		return nil
	}
	stream := payload.Stream.StreamDescriptor.Descriptor()
	sm, err := r.syncManager.StreamManager(stream)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "state for a stream outside the catalog").
			WithDetail("stream", stream.String())
	}

	r.stats.States++
	streamState := append(json.RawMessage(nil), payload.Stream.StreamState...)
	return r.checkpoints.AddStreamCheckpoint(stream, sm.RecordCount(), streamState)
}

func (r *Reader) handleTrace(ctx context.Context, payload *TracePayload) error {
	if payload == nil || payload.Type != TraceTypeStreamStatus || payload.StreamStatus == nil {
		return nil
	}
	if payload.StreamStatus.Status != StreamStatusComplete {
		return nil
	}
	stream := payload.StreamStatus.StreamDescriptor.Descriptor()
	if _, err := r.syncManager.StreamManager(stream); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "status for a stream outside the catalog").
			WithDetail("stream", stream.String())
	}
	return r.endStream(ctx, stream)
}

func (r *Reader) endStream(ctx context.Context, stream destination.Descriptor) error {
	sm, err := r.syncManager.StreamManager(stream)
	if err != nil {
		return err
	}
	count, err := sm.MarkEndOfStream()
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "stream completed twice").
			WithDetail("stream", stream.String())
	}
	r.stats.StreamsDone++
	r.logger.Info("end of stream", zap.String("stream", stream.String()), zap.Int64("records", count))

	q, err := r.queues.Get(stream)
	if err != nil {
		return err
	}
	if err := q.Publish(ctx, queue.StreamComplete{Index: count}); err != nil && !nebulaerrors.IsQueueClosed(err) {
		return err
	}
	return nil
}

func (r *Reader) endOpenStreams(ctx context.Context) error {
	for _, stream := range r.syncManager.Streams() {
		sm, err := r.syncManager.StreamManager(stream)
		if err != nil {
			return err
		}
		if sm.EndOfStreamRead() {
			continue
		}
		r.logger.Warn("input ended without stream completion, ending stream", zap.String("stream", stream.String()))
		if err := r.endStream(ctx, stream); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) tracker(stream destination.Descriptor) *metrics.ThroughputTracker {
	t, ok := r.trackers[stream]
	if !ok {
		t = metrics.NewThroughputTracker(stream.String())
		r.trackers[stream] = t
	}
	return t
}

func (r *Reader) reportThroughput(force bool) {
	if !force && time.Since(r.lastReport) < throughputInterval {
		return
	}
	for _, t := range r.trackers {
		t.GetAndReset()
	}
	r.lastReport = time.Now()
}
