package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-sync/pkg/config"
	"github.com/ajitpratap0/nebula-sync/pkg/connectors/registry"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
	stringpool "github.com/ajitpratap0/nebula-sync/pkg/strings"
	"github.com/ajitpratap0/nebula-sync/pkg/testutil"
)

var users = destination.Stream{Descriptor: destination.Descriptor{Namespace: "public", Name: "users"}}

func testRecords(n int) destination.RecordIterator {
	records := make([]destination.Record, n)
	for i := range records {
		records[i] = destination.Record{
			Namespace: "public",
			Stream:    "users",
			Data:      json.RawMessage(`{"id":1}`),
			EmittedAt: int64(i),
		}
	}
	return destination.NewSliceIterator(records)
}

func setupWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.db")
	w, err := NewWriter(config.SQLiteConfig{Path: path, TablePrefix: "raw_"}, testutil.TestLogger(t))
	require.NoError(t, err)
	require.NoError(t, w.Setup(context.Background()))
	return w, path
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+stringpool.QuoteIdentifier(table)).Scan(&n))
	return n
}

func TestSQLite_TwoPhaseLoad(t *testing.T) {
	ctx := context.Background()
	w, _ := setupWriter(t)

	loader, err := w.CreateStreamLoader(users)
	require.NoError(t, err)
	require.NoError(t, loader.Start(ctx))

	batch, err := loader.ProcessRecords(ctx, testRecords(3), 30)
	require.NoError(t, err)
	assert.Equal(t, destination.Persisted, batch.State())

	db, err := w.handle()
	require.NoError(t, err)
	assert.Equal(t, 3, countRows(t, db, "_nebula_stage_raw_public_users"))
	assert.Equal(t, 0, countRows(t, db, "raw_public_users"))

	merged, err := loader.ProcessBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, destination.Complete, merged.State())
	assert.Equal(t, 0, countRows(t, db, "_nebula_stage_raw_public_users"))
	assert.Equal(t, 3, countRows(t, db, "raw_public_users"))

	var data string
	require.NoError(t, db.QueryRow(`SELECT _nebula_data FROM raw_public_users WHERE _nebula_emitted_at = 2`).Scan(&data))
	assert.JSONEq(t, `{"id":1}`, data)

	require.NoError(t, loader.Close(ctx, nil))
	var staging int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = '_nebula_stage_raw_public_users'`).Scan(&staging))
	assert.Equal(t, 0, staging)

	require.NoError(t, w.Teardown(ctx, nil))
	_, err = w.handle()
	assert.Error(t, err)
}

func TestSQLite_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w, _ := setupWriter(t)
	defer func() { _ = w.Teardown(ctx, nil) }()

	loader, err := w.CreateStreamLoader(users)
	require.NoError(t, err)
	require.NoError(t, loader.Start(ctx))

	batch, err := loader.ProcessRecords(ctx, testRecords(2), 20)
	require.NoError(t, err)
	_, err = loader.ProcessBatch(ctx, batch)
	require.NoError(t, err)
	_, err = loader.ProcessBatch(ctx, batch)
	require.NoError(t, err)

	db, err := w.handle()
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, db, "raw_public_users"))
}

func TestSQLite_EmptyFileCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	w, _ := setupWriter(t)
	defer func() { _ = w.Teardown(ctx, nil) }()

	loader, err := w.CreateStreamLoader(users)
	require.NoError(t, err)
	require.NoError(t, loader.Start(ctx))

	batch, err := loader.ProcessRecords(ctx, testRecords(0), 0)
	require.NoError(t, err)
	assert.Equal(t, destination.Complete, batch.State())
}

func TestSQLite_FailedCloseDiscardsStagedBatches(t *testing.T) {
	ctx := context.Background()
	w, _ := setupWriter(t)
	defer func() { _ = w.Teardown(ctx, assert.AnError) }()

	loader, err := w.CreateStreamLoader(users)
	require.NoError(t, err)
	require.NoError(t, loader.Start(ctx))

	_, err = loader.ProcessRecords(ctx, testRecords(4), 40)
	require.NoError(t, err)
	require.NoError(t, loader.Close(ctx, assert.AnError))

	db, err := w.handle()
	require.NoError(t, err)
	assert.Equal(t, 0, countRows(t, db, "_nebula_stage_raw_public_users"))
	assert.Equal(t, 0, countRows(t, db, "raw_public_users"))
}

func TestSQLite_StartBeforeSetup(t *testing.T) {
	w, err := NewWriter(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db")}, testutil.TestLogger(t))
	require.NoError(t, err)
	loader, err := w.CreateStreamLoader(users)
	require.NoError(t, err)
	assert.Error(t, loader.Start(context.Background()))
}

func TestTableNameAndStatements(t *testing.T) {
	assert.Equal(t, "users", TableName(destination.Descriptor{Name: "users"}))
	assert.Equal(t, "public_users", TableName(destination.Descriptor{Namespace: "public", Name: "users"}))

	stmts := buildStatements("raw_users", "_nebula_stage_raw_users")
	assert.Equal(t, `DELETE FROM "_nebula_stage_raw_users" WHERE _nebula_batch_id = ?`, stmts.discard)
	assert.Equal(t, `DROP TABLE IF EXISTS "_nebula_stage_raw_users"`, stmts.dropStaging)
	assert.Contains(t, stmts.merge, `INSERT OR IGNORE INTO "raw_users"`)
}

func TestSQLite_Registered(t *testing.T) {
	assert.True(t, registry.HasDestination(config.DestinationSQLite))

	w, err := registry.CreateDestination(config.DestinationConfig{
		Type:   config.DestinationSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "r.db")},
	}, testutil.TestLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &Writer{}, w)

	_, err = NewWriter(config.SQLiteConfig{}, testutil.TestLogger(t))
	assert.Error(t, err)
}
