package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/ranges"
)

var users = destination.Descriptor{Namespace: "public", Name: "users"}

func envelope(state destination.BatchState, r ranges.Range) destination.BatchEnvelope[destination.Batch] {
	return destination.NewEnvelope[destination.Batch](destination.SimpleBatch{BatchState: state}, &r)
}

func readRecords(m *StreamManager, n int) {
	for i := 0; i < n; i++ {
		m.CountRecordIn()
	}
}

func TestStreamManager_CountRecordIn(t *testing.T) {
	m := NewStreamManager(users)
	assert.Equal(t, int64(0), m.CountRecordIn())
	assert.Equal(t, int64(1), m.CountRecordIn())
	assert.Equal(t, int64(2), m.RecordCount())
	assert.Equal(t, []ranges.Range{ranges.New(0, 2)}, m.Snapshot().Read)

	count, err := m.MarkEndOfStream()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.True(t, m.EndOfStreamRead())

	_, err = m.MarkEndOfStream()
	assert.Error(t, err)
}

func TestStreamManager_PersistedSubsetOfRead(t *testing.T) {
	m := NewStreamManager(users)
	readRecords(m, 10)

	require.NoError(t, m.MarkRangePersisted(ranges.New(0, 5)))
	err := m.MarkRangePersisted(ranges.New(5, 11))
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeInternal))
	assert.True(t, m.AreRecordsPersistedUntil(5))
	assert.False(t, m.AreRecordsPersistedUntil(6))
}

func TestStreamManager_UpdateBatchState(t *testing.T) {
	m := NewStreamManager(users)
	readRecords(m, 30)

	// staged batches are not durable
	require.NoError(t, m.UpdateBatchState(envelope(destination.Staged, ranges.New(0, 10))))
	assert.False(t, m.AreRecordsPersistedUntil(10))

	require.NoError(t, m.UpdateBatchState(envelope(destination.Persisted, ranges.New(10, 20))))
	assert.False(t, m.AreRecordsPersistedUntil(10))

	require.NoError(t, m.UpdateBatchState(envelope(destination.Complete, ranges.New(0, 10))))
	assert.True(t, m.AreRecordsPersistedUntil(20))

	// no range, no change
	require.NoError(t, m.UpdateBatchState(destination.BatchEnvelope[destination.Batch]{
		Batch: destination.SimpleBatch{BatchState: destination.Complete},
	}))

	snap := m.Snapshot()
	assert.Equal(t, []ranges.Range{ranges.New(0, 20)}, snap.Persisted)
	assert.Equal(t, []ranges.Range{ranges.New(0, 10)}, snap.Complete)
}

// completeBatch issues and completes one batch covering r
func completeBatch(t *testing.T, m *StreamManager, r ranges.Range, final bool) {
	t.Helper()
	require.NoError(t, m.BatchIssued(final))
	require.NoError(t, m.UpdateBatchState(envelope(destination.Complete, r)))
	require.NoError(t, m.BatchCompleted())
}

func TestStreamManager_BatchCompletionGating(t *testing.T) {
	m := NewStreamManager(users)
	readRecords(m, 20)

	completeBatch(t, m, ranges.New(0, 10), false)
	completeBatch(t, m, ranges.New(10, 20), false)
	_, err := m.MarkEndOfStream()
	require.NoError(t, err)
	assert.False(t, m.IsBatchProcessingComplete(), "final batch not issued yet")
	assert.False(t, m.ClaimCloseIfComplete())

	// the final batch holds no records but must still complete
	require.NoError(t, m.BatchIssued(true))
	assert.Equal(t, int64(1), m.OutstandingBatches())
	assert.False(t, m.IsBatchProcessingComplete(), "final batch outstanding")
	assert.False(t, m.ClaimCloseIfComplete())

	require.NoError(t, m.BatchCompleted())
	assert.True(t, m.IsBatchProcessingComplete())

	assert.True(t, m.ClaimCloseIfComplete())
	assert.False(t, m.ClaimCloseIfComplete())
	assert.False(t, m.ClaimClose())
}

func TestStreamManager_ClaimCloseSingleWinner(t *testing.T) {
	m := NewStreamManager(users)
	readRecords(m, 1)
	_, err := m.MarkEndOfStream()
	require.NoError(t, err)
	completeBatch(t, m, ranges.New(0, 1), true)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.ClaimCloseIfComplete() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStreamManager_EmptyStreamIsComplete(t *testing.T) {
	m := NewStreamManager(users)
	_, err := m.MarkEndOfStream()
	require.NoError(t, err)
	require.NoError(t, m.BatchIssued(true))
	assert.False(t, m.IsBatchProcessingComplete())

	require.NoError(t, m.UpdateBatchState(destination.BatchEnvelope[destination.Batch]{
		Batch: destination.SimpleBatch{BatchState: destination.Complete},
	}))
	require.NoError(t, m.BatchCompleted())
	assert.True(t, m.IsBatchProcessingComplete())
}

func TestStreamManager_BatchCounting(t *testing.T) {
	m := NewStreamManager(users)

	err := m.BatchCompleted()
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeInternal))

	require.NoError(t, m.BatchIssued(false))
	require.NoError(t, m.BatchIssued(true))
	err = m.BatchIssued(false)
	require.Error(t, err, "no batch may follow the final one")
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeInternal))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.OutstandingBatches)
	assert.True(t, snap.FinalBatchIssued)
}

func TestStreamManager_MarkFailed(t *testing.T) {
	m := NewStreamManager(users)
	first := errors.New("first")

	assert.True(t, m.MarkFailed(first))
	assert.False(t, m.MarkFailed(errors.New("second")))
	assert.Equal(t, first, m.Failure())

	select {
	case <-m.Failed():
	default:
		t.Fatal("Failed channel should be closed")
	}
}

func TestStreamManager_Lifecycle(t *testing.T) {
	m := NewStreamManager(users)
	assert.False(t, m.IsStreamStarted())
	m.MarkStreamStarted()
	assert.True(t, m.IsStreamStarted())

	m.MarkStreamClosed()
	m.MarkStreamClosed()
	assert.True(t, m.IsStreamClosed())
}
