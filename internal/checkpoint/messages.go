package checkpoint

import (
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
)

// Protocol message and state types
const (
	MessageTypeRecord = "RECORD"
	MessageTypeState  = "STATE"
	MessageTypeTrace  = "TRACE"

	StateTypeStream = "STREAM"
)

// Checkpoint is an opaque stream state that becomes safe to emit once every
// record below Index is persisted.
type Checkpoint struct {
	Stream destination.Descriptor
	Index  int64
	State  json.RawMessage
}

// StreamDescriptor is the protocol form of a destination.Descriptor
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// Descriptor converts to the engine form
func (d StreamDescriptor) Descriptor() destination.Descriptor {
	return destination.Descriptor{Namespace: d.Namespace, Name: d.Name}
}

// StreamState is the per-stream state payload
type StreamState struct {
	StreamDescriptor StreamDescriptor `json:"stream_descriptor"`
	StreamState      json.RawMessage  `json:"stream_state,omitempty"`
}

// DestinationStats reports how many records a flushed checkpoint covers
type DestinationStats struct {
	RecordCount int64 `json:"record_count"`
}

// State is the body of a STATE message
type State struct {
	Type             string            `json:"type"`
	Stream           *StreamState      `json:"stream,omitempty"`
	DestinationStats *DestinationStats `json:"destination_stats,omitempty"`
}

// StateMessage is a complete STATE protocol line
type StateMessage struct {
	Type  string `json:"type"`
	State State  `json:"state"`
}

// NewStateMessage builds the STATE line emitted for cp
func NewStateMessage(cp Checkpoint, recordCount int64) StateMessage {
	return StateMessage{
		Type: MessageTypeState,
		State: State{
			Type: StateTypeStream,
			Stream: &StreamState{
				StreamDescriptor: StreamDescriptor{Name: cp.Stream.Name, Namespace: cp.Stream.Namespace},
				StreamState:      cp.State,
			},
			DestinationStats: &DestinationStats{RecordCount: recordCount},
		},
	}
}
