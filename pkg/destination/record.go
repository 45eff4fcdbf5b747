package destination

import (
	"github.com/ajitpratap0/nebula-sync/pkg/json"
)

// Record is one data record addressed to a stream. Its JSON form is also the
// line format of spilled files.
type Record struct {
	Namespace string          `json:"namespace,omitempty"`
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	EmittedAt int64           `json:"emitted_at"`
}

// Descriptor returns the stream the record belongs to
func (r Record) Descriptor() Descriptor {
	return Descriptor{Namespace: r.Namespace, Name: r.Stream}
}

// RecordIterator yields records lazily. Next returns false when the records
// are exhausted or an error occurred, which Err then reports.
type RecordIterator interface {
	Next() bool
	Record() Record
	Err() error
}

// SliceIterator iterates over an in-memory slice
type SliceIterator struct {
	records []Record
	pos     int
}

// NewSliceIterator creates an iterator over records
func NewSliceIterator(records []Record) *SliceIterator {
	return &SliceIterator{records: records, pos: -1}
}

func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.records) {
		it.pos = len(it.records)
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Record() Record {
	return it.records[it.pos]
}

func (it *SliceIterator) Err() error {
	return nil
}

// Collect drains an iterator into a slice
func Collect(it RecordIterator) ([]Record, error) {
	var out []Record
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}
