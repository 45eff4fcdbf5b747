// Package compression provides streaming compression for nebula-sync spill
// files and connector output, with multiple algorithms behind one API.
//
// # Overview
//
// The compression package provides:
//   - Multiple compression algorithms (Gzip, Snappy, S2, LZ4, Zstd)
//   - Streaming writers and readers that wrap an io.Writer / io.Reader
//   - File extensions per algorithm so spilled files are self-describing
//
// # Algorithm Selection
//
// Choose algorithms based on your requirements:
//   - Snappy/S2: Best for speed, moderate compression
//   - LZ4: Extremely fast, decent compression
//   - Zstd: Best compression ratio, good speed
//   - Gzip: Wide compatibility, good compression
//
// # Basic Usage
//
//	w, err := compression.NewWriter(file, compression.Zstd)
//	if err != nil {
//	    return err
//	}
//	// write records to w
//	if err := w.Close(); err != nil { // flushes the codec, does not close file
//	    return err
//	}
//
//	r, err := compression.NewReader(file, compression.Zstd)
//	defer r.Close()
package compression

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// Algorithm represents a compression algorithm.
// Each algorithm has different trade-offs between speed and compression ratio.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Algorithms lists every supported algorithm
var Algorithms = []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2}

// ParseAlgorithm resolves a configured name. The empty string means None.
func ParseAlgorithm(name string) (Algorithm, error) {
	if name == "" {
		return None, nil
	}
	alg := Algorithm(strings.ToLower(name))
	for _, known := range Algorithms {
		if alg == known {
			return alg, nil
		}
	}
	return "", nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "unsupported compression algorithm").
		WithDetail("algorithm", name)
}

// Extension returns the file suffix for the algorithm, including the dot
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".sz"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	case S2:
		return ".s2"
	default:
		return ""
	}
}

// NewWriter wraps dst with a compressing writer. Closing the returned writer
// flushes the codec but never closes dst.
func NewWriter(dst io.Writer, alg Algorithm) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, gzip.DefaultCompression)
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		return s2.NewWriter(dst), nil
	case LZ4:
		return lz4.NewWriter(dst), nil
	case Zstd:
		return zstd.NewWriter(dst)
	default:
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "unsupported compression algorithm").
			WithDetail("algorithm", string(alg))
	}
}

// NewReader wraps src with a decompressing reader. Closing the returned
// reader releases codec resources but never closes src.
func NewReader(src io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		return gzip.NewReader(src)
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Zstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	default:
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "unsupported compression algorithm").
			WithDetail("algorithm", string(alg))
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// zstd.Decoder.Close has no error return
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
