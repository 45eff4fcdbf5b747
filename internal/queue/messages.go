package queue

import (
	"sync"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// StreamMessage is either a StreamRecord or a StreamComplete
type StreamMessage interface {
	streamMessage()
}

// StreamRecord is one record with its per-stream index and input size
type StreamRecord struct {
	Index     int64
	SizeBytes int64
	Record    destination.Record
}

// StreamComplete marks the end of a stream. Index is the stream's final
// record count.
type StreamComplete struct {
	Index int64
}

func (StreamRecord) streamMessage()   {}
func (StreamComplete) streamMessage() {}

// StreamQueues holds one message queue per catalog stream
type StreamQueues struct {
	mu     sync.RWMutex
	queues map[destination.Descriptor]*ChannelQueue[StreamMessage]
}

// NewStreamQueues creates a queue for every descriptor
func NewStreamQueues(descriptors []destination.Descriptor, capacity int) *StreamQueues {
	queues := make(map[destination.Descriptor]*ChannelQueue[StreamMessage], len(descriptors))
	for _, d := range descriptors {
		queues[d] = NewChannelQueue[StreamMessage](capacity)
	}
	return &StreamQueues{queues: queues}
}

// Get returns the queue of stream d
func (s *StreamQueues) Get(d destination.Descriptor) (*ChannelQueue[StreamMessage], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[d]
	if !ok {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeNotFound, "no queue for stream").
			WithDetail("stream", d.String())
	}
	return q, nil
}

// CloseAll closes every queue
func (s *StreamQueues) CloseAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.queues {
		q.Close()
	}
}
