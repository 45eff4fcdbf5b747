package testutil

import (
	"strings"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
)

// RecordLine renders a RECORD protocol line. data must be a JSON value.
func RecordLine(d destination.Descriptor, data string) string {
	ns := ""
	if d.Namespace != "" {
		ns = `"namespace":"` + d.Namespace + `",`
	}
	return `{"type":"RECORD","record":{` + ns + `"stream":"` + d.Name + `","data":` + data + `,"emitted_at":1}}`
}

// StateLine renders a per-stream STATE protocol line. state must be a JSON value.
func StateLine(d destination.Descriptor, state string) string {
	return `{"type":"STATE","state":{"type":"STREAM","stream":{"stream_descriptor":` + descriptor(d) +
		`,"stream_state":` + state + `}}}`
}

// CompleteLine renders the TRACE line that marks a stream complete
func CompleteLine(d destination.Descriptor) string {
	return `{"type":"TRACE","trace":{"type":"STREAM_STATUS","stream_status":{"stream_descriptor":` + descriptor(d) +
		`,"status":"COMPLETE"}}}`
}

// Input joins protocol lines into a newline terminated input stream
func Input(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func descriptor(d destination.Descriptor) string {
	if d.Namespace == "" {
		return `{"name":"` + d.Name + `"}`
	}
	return `{"name":"` + d.Name + `","namespace":"` + d.Namespace + `"}`
}
