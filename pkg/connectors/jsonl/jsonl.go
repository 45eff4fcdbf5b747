// Package jsonl is a reference destination that writes every stream to a
// directory of JSONL part files.
//
// Loading is two-phase. ProcessRecords writes and syncs a hidden part file,
// which makes the batch Persisted. ProcessBatch renames the part file into
// place, which makes it Complete and visible to readers of the directory.
//
// Layout:
//
//	<output_dir>/<namespace>/<stream>/part-<uuid>.jsonl[.ext]
//	<output_dir>/_SUCCESS          written by a successful teardown
package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/pkg/compression"
	"github.com/ajitpratap0/nebula-sync/pkg/config"
	"github.com/ajitpratap0/nebula-sync/pkg/connectors/registry"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// SuccessMarker is created in the output directory after a successful sync
const SuccessMarker = "_SUCCESS"

func init() {
	_ = registry.RegisterDestination(registry.ConnectorInfo{
		Name:         config.DestinationJSONL,
		Description:  "Local JSONL part files committed by rename",
		Version:      "1.0.0",
		Capabilities: []string{"two_phase_commit", "compression"},
	}, func(cfg config.DestinationConfig, logger *zap.Logger) (destination.Writer, error) {
		return NewWriter(cfg.JSONL, logger)
	})
}

// Row is the line format of part files
type Row struct {
	RawID     string          `json:"_nebula_raw_id"`
	EmittedAt int64           `json:"_nebula_emitted_at"`
	LoadedAt  int64           `json:"_nebula_loaded_at"`
	Data      json.RawMessage `json:"_nebula_data"`
}

// Writer writes every stream below one output directory
type Writer struct {
	outputDir   string
	compression compression.Algorithm
	logger      *zap.Logger
}

// NewWriter creates a JSONL writer
func NewWriter(cfg config.JSONLConfig, logger *zap.Logger) (*Writer, error) {
	if cfg.OutputDir == "" {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "jsonl output_dir is required")
	}
	alg, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, err
	}
	return &Writer{
		outputDir:   cfg.OutputDir,
		compression: alg,
		logger:      logger.With(zap.String("component", "jsonl_writer")),
	}, nil
}

// Setup creates the output directory and clears a stale success marker
func (w *Writer) Setup(ctx context.Context) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to create output directory").
			WithDetail("dir", w.outputDir)
	}
	if err := os.Remove(filepath.Join(w.outputDir, SuccessMarker)); err != nil && !os.IsNotExist(err) {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to remove success marker")
	}
	return nil
}

// CreateStreamLoader returns the loader of stream
func (w *Writer) CreateStreamLoader(stream destination.Stream) (destination.StreamLoader, error) {
	dir := filepath.Join(w.outputDir, pathSegment(stream.Name))
	if stream.Namespace != "" {
		dir = filepath.Join(w.outputDir, pathSegment(stream.Namespace), pathSegment(stream.Name))
	}
	return &StreamLoader{
		stream:      stream,
		dir:         dir,
		compression: w.compression,
		pending:     make(map[string]struct{}),
		logger:      w.logger.With(zap.String("stream", stream.String())),
	}, nil
}

// Teardown writes the success marker when the sync succeeded
func (w *Writer) Teardown(ctx context.Context, failure error) error {
	if failure != nil {
		w.logger.Warn("sync failed, not writing success marker", zap.Error(failure))
		return nil
	}
	marker := filepath.Join(w.outputDir, SuccessMarker)
	if err := os.WriteFile(marker, nil, 0o644); err != nil { //nolint:gosec // marker is world readable like the data
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to write success marker")
	}
	return nil
}

// PartBatch is one part file. It is Persisted once synced and Complete once
// renamed into place.
type PartBatch struct {
	PartPath  string
	FinalPath string
	Records   int64
	state     destination.BatchState
}

func (b *PartBatch) State() destination.BatchState {
	return b.state
}

// StreamLoader writes the part files of one stream
type StreamLoader struct {
	stream      destination.Stream
	dir         string
	compression compression.Algorithm
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func (l *StreamLoader) Stream() destination.Stream {
	return l.stream
}

// Start creates the stream directory
func (l *StreamLoader) Start(ctx context.Context) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to create stream directory").
			WithDetail("dir", l.dir)
	}
	return nil
}

// ProcessRecords writes records to a hidden part file. A file without
// records produces no part and completes immediately.
func (l *StreamLoader) ProcessRecords(ctx context.Context, records destination.RecordIterator, totalSizeBytes int64) (destination.Batch, error) {
	id := uuid.NewString()
	name := "part-" + id + ".jsonl" + l.compression.Extension()
	batch := &PartBatch{
		PartPath:  filepath.Join(l.dir, "."+name+".part"),
		FinalPath: filepath.Join(l.dir, name),
		state:     destination.Persisted,
	}

	f, err := os.OpenFile(batch.PartPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // path built from a uuid
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to create part file").
			WithDetail("path", batch.PartPath)
	}
	l.track(batch.PartPath)

	written, err := l.writePart(f, records)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = nebulaerrors.Wrap(closeErr, nebulaerrors.ErrorTypeFile, "failed to close part file")
	}
	if err != nil {
		l.discard(batch.PartPath)
		return nil, err
	}

	if written == 0 {
		l.discard(batch.PartPath)
		return destination.SimpleBatch{BatchState: destination.Complete}, nil
	}
	batch.Records = written
	l.logger.Debug("part file persisted",
		zap.String("path", batch.PartPath),
		zap.Int64("records", written),
		zap.Int64("input_bytes", totalSizeBytes))
	return batch, nil
}

func (l *StreamLoader) writePart(f *os.File, records destination.RecordIterator) (int64, error) {
	codec, err := compression.NewWriter(f, l.compression)
	if err != nil {
		return 0, err
	}
	lines := json.NewLineWriter(codec)
	loadedAt := time.Now().UnixMilli()

	for records.Next() {
		rec := records.Record()
		row := Row{RawID: uuid.NewString(), EmittedAt: rec.EmittedAt, LoadedAt: loadedAt, Data: rec.Data}
		if err := lines.Encode(row); err != nil {
			_ = codec.Close()
			return 0, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to write part file")
		}
	}
	if err := records.Err(); err != nil {
		_ = codec.Close()
		return 0, err
	}
	if err := lines.Flush(); err != nil {
		_ = codec.Close()
		return 0, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to flush part file")
	}
	if err := codec.Close(); err != nil {
		return 0, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to finish part file compression")
	}
	if err := f.Sync(); err != nil {
		return 0, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to sync part file")
	}
	return lines.Lines(), nil
}

// ProcessBatch commits a persisted part file by renaming it into place
func (l *StreamLoader) ProcessBatch(ctx context.Context, batch destination.Batch) (destination.Batch, error) {
	part, ok := batch.(*PartBatch)
	if !ok {
		return batch, nil
	}
	if part.state == destination.Complete {
		return part, nil
	}
	if err := os.Rename(part.PartPath, part.FinalPath); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to commit part file").
			WithDetail("path", part.PartPath)
	}
	l.untrack(part.PartPath)
	return &PartBatch{PartPath: part.PartPath, FinalPath: part.FinalPath, Records: part.Records, state: destination.Complete}, nil
}

// Close removes uncommitted part files
func (l *StreamLoader) Close(ctx context.Context, failure error) error {
	l.mu.Lock()
	pending := make([]string, 0, len(l.pending))
	for path := range l.pending {
		pending = append(pending, path)
	}
	l.mu.Unlock()

	for _, path := range pending {
		l.discard(path)
	}
	if failure != nil {
		l.logger.Warn("stream closed after failure", zap.Int("discarded_parts", len(pending)), zap.Error(failure))
	}
	return nil
}

func (l *StreamLoader) track(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[path] = struct{}{}
}

func (l *StreamLoader) untrack(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, path)
}

func (l *StreamLoader) discard(path string) {
	l.untrack(path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("failed to remove part file", zap.String("path", path), zap.Error(err))
	}
}

// pathSegment keeps a stream name usable as one directory name
func pathSegment(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(name)
	if name == "" || name == "." {
		return "_"
	}
	return name
}
