package destination

import (
	"github.com/ajitpratap0/nebula-sync/pkg/compression"
	"github.com/ajitpratap0/nebula-sync/pkg/ranges"
)

// BatchState is the durability of a batch. States only move forward and
// Complete is terminal.
type BatchState int

const (
	// Staged batches exist only locally
	Staged BatchState = iota
	// Persisted batches are durable in the destination but not yet visible
	Persisted
	// Complete batches need no further processing
	Complete
)

func (s BatchState) String() string {
	switch s {
	case Staged:
		return "staged"
	case Persisted:
		return "persisted"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// IsPersisted reports whether the state is durable
func (s BatchState) IsPersisted() bool {
	return s >= Persisted
}

// Batch is a connector-defined unit of work
type Batch interface {
	State() BatchState
}

// SimpleBatch is a Batch with no payload
type SimpleBatch struct {
	BatchState BatchState
}

func (b SimpleBatch) State() BatchState {
	return b.BatchState
}

// BatchEnvelope carries a batch with the record range it covers. A nil Range
// means the batch covers no records.
type BatchEnvelope[B Batch] struct {
	Batch B
	Range *ranges.Range
}

// NewEnvelope wraps batch with the given range
func NewEnvelope[B Batch](batch B, r *ranges.Range) BatchEnvelope[B] {
	return BatchEnvelope[B]{Batch: batch, Range: r}
}

// WithBatch re-wraps a new batch with the range of env
func WithBatch[B Batch, C Batch](env BatchEnvelope[B], batch C) BatchEnvelope[C] {
	return BatchEnvelope[C]{Batch: batch, Range: env.Range}
}

// Erase returns the envelope with its batch type widened to Batch
func (e BatchEnvelope[B]) Erase() BatchEnvelope[Batch] {
	return BatchEnvelope[Batch]{Batch: e.Batch, Range: e.Range}
}

// SpilledFile is a local file of JSONL records awaiting processing
type SpilledFile struct {
	Path           string
	TotalSizeBytes int64
	RecordCount    int64
	Compression    compression.Algorithm
	// EndOfStream marks the last file of its stream
	EndOfStream bool
}

// State is always Staged
func (f *SpilledFile) State() BatchState {
	return Staged
}
