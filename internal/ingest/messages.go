package ingest

import (
	"github.com/ajitpratap0/nebula-sync/internal/checkpoint"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
)

// Trace and stream status values understood by the reader
const (
	TraceTypeStreamStatus = "STREAM_STATUS"
	StreamStatusComplete  = "COMPLETE"
)

// Message is one input protocol line. Exactly one payload matches Type.
type Message struct {
	Type   string            `json:"type"`
	Record *RecordPayload    `json:"record,omitempty"`
	State  *checkpoint.State `json:"state,omitempty"`
	Trace  *TracePayload     `json:"trace,omitempty"`
}

// RecordPayload is the body of a RECORD message
type RecordPayload struct {
	Namespace string          `json:"namespace,omitempty"`
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	EmittedAt int64           `json:"emitted_at"`
}

// TracePayload is the body of a TRACE message
type TracePayload struct {
	Type         string               `json:"type"`
	StreamStatus *StreamStatusPayload `json:"stream_status,omitempty"`
}

// StreamStatusPayload reports a stream status change
type StreamStatusPayload struct {
	StreamDescriptor checkpoint.StreamDescriptor `json:"stream_descriptor"`
	Status           string                      `json:"status"`
}
