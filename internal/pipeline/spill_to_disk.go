package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/internal/queue"
	"github.com/ajitpratap0/nebula-sync/internal/spill"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
)

// SpillToDiskTask drains the record queue of one stream into spill files. A
// file is handed off once its records reach the batch size, on every forced
// flush while it holds records, and at the end of the stream. The size threshold is
// soft: the record crossing it still lands in the current file.
type SpillToDiskTask struct {
	stream         destination.Descriptor
	queues         *queue.StreamQueues
	provider       spill.Provider
	events         ForceFlushEvents
	batchSizeBytes int64
	launcher       Launcher
	logger         *zap.Logger

	writer *spill.FileWriter
}

func (t *SpillToDiskTask) Name() string                   { return TaskSpillToDisk }
func (t *SpillToDiskTask) Stream() destination.Descriptor { return t.stream }

func (t *SpillToDiskTask) Execute(ctx context.Context) error {
	q, err := t.queues.Get(t.stream)
	if err != nil {
		return err
	}

	var flushes <-chan checkpoint.ForceFlushEvent
	if t.events != nil {
		flushes = t.events.Subscribe(t.stream)
		defer t.events.Unsubscribe(t.stream)
	}

	for {
		if q.IsClosed() {
			return t.discard()
		}

		select {
		case <-ctx.Done():
			_ = t.discard()
			return ctx.Err()

		case <-q.Done():
			return t.discard()

		case ev := <-flushes:
			// records in the open file are never persisted, so every flushed
			// checkpoint index lies at or below them
			if t.writer == nil || t.writer.IsEmpty() {
				continue
			}
			t.logger.Debug("forced flush of open spill file",
				zap.Int64("last_index", t.writer.LastIndex()),
				zap.Int64("checkpoint_index", ev.IndexFor(t.stream)))
			if err := t.flush(ctx, false); err != nil {
				return err
			}

		case msg := <-q.Consume():
			switch m := msg.(type) {
			case queue.StreamRecord:
				if err := t.append(m); err != nil {
					return err
				}
				if t.writer.TotalSizeBytes() >= t.batchSizeBytes {
					if err := t.flush(ctx, false); err != nil {
						return err
					}
				}
			case queue.StreamComplete:
				t.logger.Debug("end of stream", zap.Int64("record_count", m.Index))
				return t.flush(ctx, true)
			}
		}
	}
}

func (t *SpillToDiskTask) append(rec queue.StreamRecord) error {
	if t.writer == nil {
		w, err := t.provider.CreateFile(t.stream)
		if err != nil {
			return err
		}
		t.writer = w
	}
	if err := t.writer.Append(rec.Index, rec.SizeBytes, rec.Record); err != nil {
		return err
	}
	metrics.SpilledBytes.WithLabelValues(t.stream.String()).Add(float64(rec.SizeBytes))
	return nil
}

// flush closes the current file, creating an empty one if none is open, and
// hands it off. final marks the last file of the stream.
func (t *SpillToDiskTask) flush(ctx context.Context, final bool) error {
	if t.writer == nil {
		w, err := t.provider.CreateFile(t.stream)
		if err != nil {
			return err
		}
		t.writer = w
	}
	w := t.writer
	t.writer = nil

	r := w.Range()
	file, err := w.Close()
	if err != nil {
		_ = w.Discard()
		return err
	}
	file.EndOfStream = final

	env := destination.NewEnvelope(file, r)
	if err := t.launcher.HandleNewSpilledFile(ctx, t.stream, env); err != nil {
		if delErr := t.provider.Delete(file.Path); delErr != nil {
			t.logger.Warn("failed to delete unclaimed spill file", zap.String("path", file.Path), zap.Error(delErr))
		}
		return err
	}
	metrics.SpilledFiles.WithLabelValues(t.stream.String()).Inc()
	t.logger.Debug("spilled file handed off",
		zap.String("path", file.Path),
		zap.Int64("records", file.RecordCount),
		zap.Int64("size_bytes", file.TotalSizeBytes))
	return nil
}

func (t *SpillToDiskTask) discard() error {
	if t.writer == nil {
		return nil
	}
	w := t.writer
	t.writer = nil
	t.logger.Debug("stream queue closed, discarding partial spill file", zap.String("path", w.Path()))
	if err := w.Discard(); err != nil {
		t.logger.Warn("failed to discard spill file", zap.Error(err))
	}
	return nil
}
