// Package sqlite is a destination that loads every stream into a table of a
// local SQLite database.
//
// Loading is two-phase. ProcessRecords inserts the records of a spilled file
// into the stream's staging table under a fresh batch id, which makes the
// batch Persisted. ProcessBatch moves that batch into the final table in one
// transaction, which makes it Complete.
package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/ajitpratap0/nebula-sync/pkg/config"
	"github.com/ajitpratap0/nebula-sync/pkg/connectors/registry"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	stringpool "github.com/ajitpratap0/nebula-sync/pkg/strings"
)

const (
	driverName    = "sqlite"
	stagingPrefix = "_nebula_stage_"
)

func init() {
	_ = registry.RegisterDestination(registry.ConnectorInfo{
		Name:         config.DestinationSQLite,
		Description:  "SQLite tables loaded through staging tables",
		Version:      "1.0.0",
		Capabilities: []string{"two_phase_commit", "idempotent_merge"},
	}, func(cfg config.DestinationConfig, logger *zap.Logger) (destination.Writer, error) {
		return NewWriter(cfg.SQLite, logger)
	})
}

// Writer owns the database handle shared by every stream loader
type Writer struct {
	path        string
	tablePrefix string
	logger      *zap.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewWriter creates a SQLite writer. The database is opened by Setup.
func NewWriter(cfg config.SQLiteConfig, logger *zap.Logger) (*Writer, error) {
	if cfg.Path == "" {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "sqlite path is required")
	}
	return &Writer{
		path:        cfg.Path,
		tablePrefix: cfg.TablePrefix,
		logger:      logger.With(zap.String("component", "sqlite_writer")),
	}, nil
}

// Setup opens the database
func (w *Writer) Setup(ctx context.Context) error {
	db, err := sql.Open(driverName, w.path)
	if err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to open sqlite database").
			WithDetail("path", w.path)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to configure sqlite database").
			WithDetail("path", w.path)
	}

	w.mu.Lock()
	w.db = db
	w.mu.Unlock()
	w.logger.Info("sqlite database opened", zap.String("path", w.path))
	return nil
}

// CreateStreamLoader returns the loader of stream
func (w *Writer) CreateStreamLoader(stream destination.Stream) (destination.StreamLoader, error) {
	table := w.tablePrefix + TableName(stream.Descriptor)
	return &StreamLoader{
		writer:  w,
		stream:  stream,
		table:   table,
		staging: stagingPrefix + table,
		sql:     buildStatements(table, stagingPrefix+table),
		pending: make(map[string]struct{}),
		logger:  w.logger.With(zap.String("stream", stream.String()), zap.String("table", table)),
	}, nil
}

// Teardown closes the database
func (w *Writer) Teardown(ctx context.Context, failure error) error {
	w.mu.Lock()
	db := w.db
	w.db = nil
	w.mu.Unlock()

	if failure != nil {
		w.logger.Warn("sync failed", zap.Error(failure))
	}
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to close sqlite database")
	}
	return nil
}

func (w *Writer) handle() (*sql.DB, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.db == nil {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConnection, "sqlite database is not open")
	}
	return w.db, nil
}

// StagedBatch is one spilled file inserted into the staging table
type StagedBatch struct {
	BatchID string
	Records int64
	state   destination.BatchState
}

func (b *StagedBatch) State() destination.BatchState {
	return b.state
}

// StreamLoader loads one stream into its final table
type StreamLoader struct {
	writer  *Writer
	stream  destination.Stream
	table   string
	staging string
	sql     statements
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func (l *StreamLoader) Stream() destination.Stream {
	return l.stream
}

// Start creates the final and staging tables
func (l *StreamLoader) Start(ctx context.Context) error {
	db, err := l.writer.handle()
	if err != nil {
		return err
	}
	for _, stmt := range []string{l.sql.createTable, l.sql.createStaging} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to create table").
				WithDetail("table", l.table)
		}
	}
	return nil
}

// ProcessRecords inserts records into the staging table under a new batch id.
// A file without records completes immediately.
func (l *StreamLoader) ProcessRecords(ctx context.Context, records destination.RecordIterator, totalSizeBytes int64) (destination.Batch, error) {
	db, err := l.writer.handle()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to begin staging transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, l.sql.stage)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to prepare staging insert")
	}
	defer stmt.Close()

	batch := &StagedBatch{BatchID: uuid.NewString(), state: destination.Persisted}
	loadedAt := time.Now().UnixMilli()
	for records.Next() {
		rec := records.Record()
		if _, err := stmt.ExecContext(ctx, batch.BatchID, uuid.NewString(), rec.EmittedAt, loadedAt, string(rec.Data)); err != nil {
			return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to stage record")
		}
		batch.Records++
	}
	if err := records.Err(); err != nil {
		return nil, err
	}
	if batch.Records == 0 {
		return destination.SimpleBatch{BatchState: destination.Complete}, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to commit staged records")
	}

	l.mu.Lock()
	l.pending[batch.BatchID] = struct{}{}
	l.mu.Unlock()
	l.logger.Debug("batch staged",
		zap.String("batch_id", batch.BatchID),
		zap.Int64("records", batch.Records),
		zap.Int64("input_bytes", totalSizeBytes))
	return batch, nil
}

// ProcessBatch moves a staged batch into the final table
func (l *StreamLoader) ProcessBatch(ctx context.Context, batch destination.Batch) (destination.Batch, error) {
	staged, ok := batch.(*StagedBatch)
	if !ok {
		return batch, nil
	}
	if staged.state == destination.Complete {
		return staged, nil
	}
	db, err := l.writer.handle()
	if err != nil {
		return nil, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to begin merge transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, l.sql.merge, staged.BatchID); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to merge staged batch").
			WithDetail("batch_id", staged.BatchID)
	}
	if _, err := tx.ExecContext(ctx, l.sql.discard, staged.BatchID); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to clear staged batch").
			WithDetail("batch_id", staged.BatchID)
	}
	if err := tx.Commit(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to commit merge")
	}

	l.mu.Lock()
	delete(l.pending, staged.BatchID)
	l.mu.Unlock()
	return &StagedBatch{BatchID: staged.BatchID, Records: staged.Records, state: destination.Complete}, nil
}

// Close drops the staging table after success. After a failure it removes
// the batches that were staged but never merged.
func (l *StreamLoader) Close(ctx context.Context, failure error) error {
	db, err := l.writer.handle()
	if err != nil {
		return err
	}

	l.mu.Lock()
	pending := make([]string, 0, len(l.pending))
	for id := range l.pending {
		pending = append(pending, id)
	}
	l.pending = make(map[string]struct{})
	l.mu.Unlock()

	if failure == nil {
		if _, err := db.ExecContext(ctx, l.sql.dropStaging); err != nil {
			return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to drop staging table").
				WithDetail("table", l.staging)
		}
		return nil
	}

	for _, id := range pending {
		if _, err := db.ExecContext(ctx, l.sql.discard, id); err != nil {
			return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to discard staged batch").
				WithDetail("batch_id", id)
		}
	}
	l.logger.Warn("stream closed after failure", zap.Int("discarded_batches", len(pending)), zap.Error(failure))
	return nil
}

// TableName maps a stream to its final table name before the prefix
func TableName(d destination.Descriptor) string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "_" + d.Name
}

// statements holds the SQL of one stream, built once per loader
type statements struct {
	createTable   string
	createStaging string
	stage         string
	merge         string
	discard       string
	dropStaging   string
}

func buildStatements(table, staging string) statements {
	t := stringpool.QuoteIdentifier(table)
	st := stringpool.QuoteIdentifier(staging)

	sb := stringpool.NewSQLBuilder()
	defer sb.Close()
	// raw ids are unique, so replaying a merged batch inserts nothing
	merge := sb.WriteQuery("INSERT OR IGNORE INTO ").WriteQuery(t).
		WriteQuery(" (_nebula_raw_id, _nebula_emitted_at, _nebula_loaded_at, _nebula_data)").
		WriteQuery(" SELECT _nebula_raw_id, _nebula_emitted_at, _nebula_loaded_at, _nebula_data FROM ").WriteQuery(st).
		WriteQuery(" WHERE _nebula_batch_id = ?").
		String()

	return statements{
		createTable: `CREATE TABLE IF NOT EXISTS ` + t + ` (
			_nebula_raw_id TEXT PRIMARY KEY,
			_nebula_emitted_at INTEGER NOT NULL,
			_nebula_loaded_at INTEGER NOT NULL,
			_nebula_data TEXT NOT NULL
		)`,
		createStaging: `CREATE TABLE IF NOT EXISTS ` + st + ` (
			_nebula_batch_id TEXT NOT NULL,
			_nebula_raw_id TEXT NOT NULL,
			_nebula_emitted_at INTEGER NOT NULL,
			_nebula_loaded_at INTEGER NOT NULL,
			_nebula_data TEXT NOT NULL
		)`,
		stage: `INSERT INTO ` + st +
			` (_nebula_batch_id, _nebula_raw_id, _nebula_emitted_at, _nebula_loaded_at, _nebula_data) VALUES (?, ?, ?, ?, ?)`,
		merge:       merge,
		discard:     `DELETE FROM ` + st + ` WHERE _nebula_batch_id = ?`,
		dropStaging: `DROP TABLE IF EXISTS ` + st,
	}
}
