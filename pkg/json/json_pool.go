// Package json provides high-performance JSON serialization with buffer pooling
package json

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// RawMessage is a raw encoded JSON value
type RawMessage = gojson.RawMessage

// MaxLineSize bounds a single JSONL line accepted by LineReader
const MaxLineSize = 64 * 1024 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetEncoder returns a JSON encoder configured for line output
func GetEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	// Configure for performance
	enc.SetEscapeHTML(false)
	return enc
}

// GetDecoder returns a JSON decoder that keeps numbers as json.Number
func GetDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a high-performance drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a high-performance drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a high-performance replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Valid reports whether data is a valid JSON encoding
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// MarshalLine marshals v followed by a newline, using a pooled buffer
func MarshalLine(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := GetEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	// Create a copy since we're returning the buffer to the pool
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// LineWriter writes line-delimited JSON values
type LineWriter struct {
	w       *bufio.Writer
	encoder *gojson.Encoder
	lines   int64
}

// NewLineWriter creates a buffered JSONL writer over w
func NewLineWriter(w io.Writer) *LineWriter {
	bw := bufio.NewWriterSize(w, 64*1024)
	return &LineWriter{w: bw, encoder: GetEncoder(bw)}
}

// Encode writes v as one line
func (lw *LineWriter) Encode(v interface{}) error {
	if err := lw.encoder.Encode(v); err != nil {
		return err
	}
	lw.lines++
	return nil
}

// WriteRaw writes an already encoded value as one line
func (lw *LineWriter) WriteRaw(line []byte) error {
	if _, err := lw.w.Write(line); err != nil {
		return err
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		if err := lw.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	lw.lines++
	return nil
}

// Lines returns the number of lines written
func (lw *LineWriter) Lines() int64 {
	return lw.lines
}

// Flush flushes buffered lines to the underlying writer
func (lw *LineWriter) Flush() error {
	return lw.w.Flush()
}

// LineReader reads line-delimited JSON values one line at a time
type LineReader struct {
	scanner *bufio.Scanner
	line    int64
}

// NewLineReader creates a JSONL reader over r
func NewLineReader(r io.Reader) *LineReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	return &LineReader{scanner: scanner}
}

// Next advances to the next non-empty line. It returns false at EOF or on error.
func (lr *LineReader) Next() bool {
	for lr.scanner.Scan() {
		lr.line++
		if len(bytes.TrimSpace(lr.scanner.Bytes())) > 0 {
			return true
		}
	}
	return false
}

// Bytes returns the current line. The slice is only valid until the next call to Next.
func (lr *LineReader) Bytes() []byte {
	return lr.scanner.Bytes()
}

// Decode unmarshals the current line into v
func (lr *LineReader) Decode(v interface{}) error {
	return gojson.Unmarshal(lr.scanner.Bytes(), v)
}

// LineNumber returns the 1-based number of the current line
func (lr *LineReader) LineNumber() int64 {
	return lr.line
}

// Err returns the first non-EOF error encountered
func (lr *LineReader) Err() error {
	return lr.scanner.Err()
}
