// Package state tracks the per-stream and per-sync progress of a sync run:
// which record indexes were read, persisted and completed, which loaders are
// running, and how streams ended.
package state

import (
	"sync"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/ranges"
)

// StreamManager holds the progress of one stream. All methods are safe for
// concurrent use.
type StreamManager struct {
	stream destination.Descriptor

	mu           sync.Mutex
	read         *ranges.Set
	persisted    *ranges.Set
	complete     *ranges.Set
	recordCount  int64
	endOfStream  bool
	outstanding  int64
	finalIssued  bool
	started      bool
	closed       bool
	closeClaimed bool
	failure      error
	failed       chan struct{}
}

// NewStreamManager creates the manager of stream
func NewStreamManager(stream destination.Descriptor) *StreamManager {
	return &StreamManager{
		stream:    stream,
		read:      ranges.NewSet(),
		persisted: ranges.NewSet(),
		complete:  ranges.NewSet(),
		failed:    make(chan struct{}),
	}
}

// Stream returns the managed stream
func (m *StreamManager) Stream() destination.Descriptor {
	return m.stream
}

// CountRecordIn assigns the next record index and marks it read
func (m *StreamManager) CountRecordIn() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := m.recordCount
	m.recordCount++
	m.read.Insert(ranges.Closed(index, index))
	return index
}

// MarkEndOfStream records that no more records will be read and returns the
// final record count. Marking twice is an error.
func (m *StreamManager) MarkEndOfStream() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.endOfStream {
		return m.recordCount, nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "end of stream already marked").
			WithDetail("stream", m.stream.String())
	}
	m.endOfStream = true
	return m.recordCount, nil
}

// EndOfStreamRead reports whether MarkEndOfStream was called
func (m *StreamManager) EndOfStreamRead() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endOfStream
}

// RecordCount returns the number of records read so far
func (m *StreamManager) RecordCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordCount
}

// MarkRangePersisted adds r to the persisted ranges. Only read ranges may be
// persisted.
func (m *StreamManager) MarkRangePersisted(r ranges.Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markPersistedLocked(r)
}

func (m *StreamManager) markPersistedLocked(r ranges.Range) error {
	if !m.read.Encloses(r) {
		return nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "cannot persist a range that was not read").
			WithDetail("stream", m.stream.String()).
			WithDetail("range", r.String())
	}
	m.persisted.Insert(r)
	return nil
}

// UpdateBatchState folds a batch result into the stream's ranges. Persisted
// and Complete batches extend the persisted ranges, Complete batches also
// extend the complete ranges. Staged batches and envelopes without a range
// change nothing. Updates are idempotent and commutative.
func (m *StreamManager) UpdateBatchState(env destination.BatchEnvelope[destination.Batch]) error {
	if env.Range == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch env.Batch.State() {
	case destination.Persisted:
		return m.markPersistedLocked(*env.Range)
	case destination.Complete:
		if err := m.markPersistedLocked(*env.Range); err != nil {
			return err
		}
		m.complete.Insert(*env.Range)
	}
	return nil
}

// BatchIssued counts a spilled file handed off for processing. final marks
// the last file of the stream; no file may be issued after it.
func (m *StreamManager) BatchIssued(final bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalIssued {
		return nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "batch issued after the final batch").
			WithDetail("stream", m.stream.String())
	}
	m.outstanding++
	m.finalIssued = final
	return nil
}

// BatchCompleted counts an issued batch that reached Complete
func (m *StreamManager) BatchCompleted() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.outstanding == 0 {
		return nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "more batches completed than issued").
			WithDetail("stream", m.stream.String())
	}
	m.outstanding--
	return nil
}

// OutstandingBatches returns the number of issued batches not yet Complete
func (m *StreamManager) OutstandingBatches() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding
}

// AreRecordsPersistedUntil reports whether every record below index is
// persisted
func (m *StreamManager) AreRecordsPersistedUntil(index int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persisted.CoveredUntil(index)
}

// IsBatchProcessingComplete reports whether the stream was read to its end,
// its final batch was issued, and every issued batch reached Complete
func (m *StreamManager) IsBatchProcessingComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isCompleteLocked()
}

func (m *StreamManager) isCompleteLocked() bool {
	return m.endOfStream &&
		m.finalIssued &&
		m.outstanding == 0 &&
		m.complete.CoveredUntil(m.recordCount)
}

// ClaimClose returns true for exactly one caller
func (m *StreamManager) ClaimClose() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeClaimed {
		return false
	}
	m.closeClaimed = true
	return true
}

// ClaimCloseIfComplete checks completeness and claims the close in one step.
// It returns true for exactly one caller, and only once processing is complete.
func (m *StreamManager) ClaimCloseIfComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeClaimed || !m.isCompleteLocked() {
		return false
	}
	m.closeClaimed = true
	return true
}

// MarkStreamStarted records that the stream's loader started
func (m *StreamManager) MarkStreamStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}

// IsStreamStarted reports whether the loader started
func (m *StreamManager) IsStreamStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// MarkStreamClosed records that the stream ended. It is idempotent.
func (m *StreamManager) MarkStreamClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// IsStreamClosed reports whether the stream ended
func (m *StreamManager) IsStreamClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MarkFailed records err as the stream failure. Only the first failure is
// kept; the return value reports whether this call recorded it.
func (m *StreamManager) MarkFailed(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return false
	}
	if err == nil {
		err = nebulaerrors.New(nebulaerrors.ErrorTypeStream, "stream failed")
	}
	m.failure = err
	close(m.failed)
	return true
}

// Failure returns the stream failure, if any
func (m *StreamManager) Failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// Failed is closed once the stream fails
func (m *StreamManager) Failed() <-chan struct{} {
	return m.failed
}

// Snapshot is a point-in-time view used in logs and tests
type Snapshot struct {
	RecordCount        int64
	EndOfStream        bool
	OutstandingBatches int64
	FinalBatchIssued   bool
	Read               []ranges.Range
	Persisted          []ranges.Range
	Complete           []ranges.Range
	Closed             bool
	Failed             bool
}

// Snapshot returns the current progress
func (m *StreamManager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		RecordCount:        m.recordCount,
		EndOfStream:        m.endOfStream,
		OutstandingBatches: m.outstanding,
		FinalBatchIssued:   m.finalIssued,
		Read:               m.read.Ranges(),
		Persisted:          m.persisted.Ranges(),
		Complete:           m.complete.Ranges(),
		Closed:             m.closed,
		Failed:             m.failure != nil,
	}
}
