// Package checkpoint decides when source state can be acknowledged. A state
// message registered at record index N is emitted only once records [0, N)
// of its stream are persisted in the destination.
package checkpoint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/internal/clocks"
	"github.com/ajitpratap0/nebula-sync/internal/state"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
	"github.com/ajitpratap0/nebula-sync/pkg/metrics"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// Manager queues checkpoints per stream and emits them in order once durable.
type Manager struct {
	syncManager *state.SyncManager
	output      Output
	clock       clocks.Clock
	logger      *zap.Logger

	mu            sync.Mutex
	lastFlushTime time.Time
	indexes       map[destination.Descriptor]int64
	pending       map[destination.Descriptor][]Checkpoint
}

// NewManager creates a checkpoint manager. The last flush time starts at
// construction.
func NewManager(syncManager *state.SyncManager, output Output, clock clocks.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		syncManager:   syncManager,
		output:        output,
		clock:         clock,
		logger:        logger.With(zap.String("component", "checkpoint_manager")),
		lastFlushTime: clock.Now(),
		indexes:       make(map[destination.Descriptor]int64),
		pending:       make(map[destination.Descriptor][]Checkpoint),
	}
}

// AddStreamCheckpoint registers state for stream, to be emitted once records
// [0, index) are persisted. Indexes must not decrease within a stream.
func (m *Manager) AddStreamCheckpoint(stream destination.Descriptor, index int64, streamState json.RawMessage) error {
	if _, err := m.syncManager.StreamManager(stream); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.pending[stream]
	last, flushed := m.indexes[stream]
	if n := len(queue); n > 0 {
		last, flushed = queue[n-1].Index, true
	}
	if flushed && index < last {
		return nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "checkpoint index moved backwards").
			WithDetail("stream", stream.String()).
			WithDetail("index", index).
			WithDetail("previous", last)
	}

	m.pending[stream] = append(queue, Checkpoint{Stream: stream, Index: index, State: streamState})
	return nil
}

// FlushReadyCheckpointMessages emits, in registration order, every pending
// checkpoint whose records are persisted.
func (m *Manager) FlushReadyCheckpointMessages(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	flushed := 0
	for _, stream := range m.syncManager.Streams() {
		queue := m.pending[stream]
		if len(queue) == 0 {
			continue
		}
		sm, err := m.syncManager.StreamManager(stream)
		if err != nil {
			return err
		}

		for len(queue) > 0 && sm.AreRecordsPersistedUntil(queue[0].Index) {
			cp := queue[0]
			previous := m.indexes[stream]
			if err := m.output.Emit(ctx, cp, cp.Index-previous); err != nil {
				m.pending[stream] = queue
				return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeSync, "failed to emit checkpoint").
					WithDetail("stream", stream.String())
			}
			m.indexes[stream] = cp.Index
			queue = queue[1:]
			flushed++
			metrics.CheckpointsFlushed.WithLabelValues(stream.String()).Inc()
		}
		if len(queue) == 0 {
			delete(m.pending, stream)
		} else {
			m.pending[stream] = queue
		}
	}

	if flushed > 0 {
		m.lastFlushTime = m.clock.Now()
		m.logger.Debug("flushed checkpoints", zap.Int("count", flushed))
	}
	return nil
}

// LastFlushTime returns when a checkpoint was last emitted
func (m *Manager) LastFlushTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFlushTime
}

// CheckpointIndexes returns a copy of the highest flushed index per stream
func (m *Manager) CheckpointIndexes() map[destination.Descriptor]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[destination.Descriptor]int64, len(m.indexes))
	for d, index := range m.indexes {
		out[d] = index
	}
	return out
}

// PendingCount returns the number of checkpoints not yet emitted
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, queue := range m.pending {
		n += len(queue)
	}
	return n
}
