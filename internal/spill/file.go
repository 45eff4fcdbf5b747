package spill

import (
	"io"
	"os"

	"github.com/ajitpratap0/nebula-sync/pkg/compression"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/ranges"
)

// FileWriter appends records to one spill file. It is not safe for
// concurrent use.
type FileWriter struct {
	file        *os.File
	codec       io.WriteCloser
	lines       *json.LineWriter
	compression compression.Algorithm

	firstIndex  int64
	lastIndex   int64
	recordCount int64
	totalSize   int64
}

func newFileWriter(f *os.File, alg compression.Algorithm) (*FileWriter, error) {
	codec, err := compression.NewWriter(f, alg)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to create spill file codec")
	}
	return &FileWriter{
		file:        f,
		codec:       codec,
		lines:       json.NewLineWriter(codec),
		compression: alg,
		firstIndex:  -1,
		lastIndex:   -1,
	}, nil
}

// Path returns the file path
func (w *FileWriter) Path() string {
	return w.file.Name()
}

// Append writes rec, recording index as one of the file's record indexes.
// sizeBytes is the input size of the record and is summed, not measured.
func (w *FileWriter) Append(index, sizeBytes int64, rec destination.Record) error {
	if err := w.lines.Encode(rec); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to append to spill file").
			WithDetail("path", w.Path())
	}
	if w.firstIndex < 0 {
		w.firstIndex = index
	}
	w.lastIndex = index
	w.recordCount++
	w.totalSize += sizeBytes
	return nil
}

// TotalSizeBytes returns the summed size of the appended records
func (w *FileWriter) TotalSizeBytes() int64 {
	return w.totalSize
}

// RecordCount returns the number of appended records
func (w *FileWriter) RecordCount() int64 {
	return w.recordCount
}

// LastIndex returns the index of the last appended record, or -1
func (w *FileWriter) LastIndex() int64 {
	return w.lastIndex
}

// IsEmpty reports whether no record was appended
func (w *FileWriter) IsEmpty() bool {
	return w.recordCount == 0
}

// Range returns [first, last+1) of the appended indexes, or nil when empty
func (w *FileWriter) Range() *ranges.Range {
	if w.IsEmpty() {
		return nil
	}
	r := ranges.Closed(w.firstIndex, w.lastIndex)
	return &r
}

// Close flushes and closes the file and describes it as a spilled file
func (w *FileWriter) Close() (*destination.SpilledFile, error) {
	if err := w.lines.Flush(); err != nil {
		_ = w.file.Close()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to flush spill file").
			WithDetail("path", w.Path())
	}
	if err := w.codec.Close(); err != nil {
		_ = w.file.Close()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to finish spill file compression").
			WithDetail("path", w.Path())
	}
	if err := w.file.Close(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to close spill file").
			WithDetail("path", w.Path())
	}
	return &destination.SpilledFile{
		Path:           w.Path(),
		TotalSizeBytes: w.totalSize,
		RecordCount:    w.recordCount,
		Compression:    w.compression,
	}, nil
}

// Discard closes and removes the file
func (w *FileWriter) Discard() error {
	_ = w.codec.Close()
	_ = w.file.Close()
	if err := os.Remove(w.Path()); err != nil && !os.IsNotExist(err) {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to discard spill file").
			WithDetail("path", w.Path())
	}
	return nil
}

// FileReader decodes a spill file lazily. It implements
// destination.RecordIterator.
type FileReader struct {
	file    *os.File
	codec   io.ReadCloser
	lines   *json.LineReader
	current destination.Record
	err     error
}

func newFileReader(f *os.File, alg compression.Algorithm) (*FileReader, error) {
	codec, err := compression.NewReader(f, alg)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "failed to open spill file codec").
			WithDetail("path", f.Name())
	}
	return &FileReader{file: f, codec: codec, lines: json.NewLineReader(codec)}, nil
}

// Next decodes the next record
func (r *FileReader) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.lines.Next() {
		if err := r.lines.Err(); err != nil {
			r.err = nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "failed to read spill file").
				WithDetail("path", r.file.Name())
		}
		return false
	}
	var rec destination.Record
	if err := r.lines.Decode(&rec); err != nil {
		r.err = nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeData, "malformed spilled record").
			WithDetail("path", r.file.Name()).
			WithDetail("line", r.lines.LineNumber())
		return false
	}
	r.current = rec
	return true
}

// Record returns the current record
func (r *FileReader) Record() destination.Record {
	return r.current
}

// Err returns the first read or decode error
func (r *FileReader) Err() error {
	return r.err
}

// Close releases the file
func (r *FileReader) Close() error {
	_ = r.codec.Close()
	return r.file.Close()
}

var _ destination.RecordIterator = (*FileReader)(nil)
