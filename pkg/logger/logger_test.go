package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.json")
	l, err := New(Config{OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("visible", zap.String("k", "v"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"message":"visible"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), SyncIDKey, "sync-1")
	ctx = context.WithValue(ctx, ConnectorKey, "jsonl")
	FromContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "sync-1", fields["sync_id"])
	assert.Equal(t, "jsonl", fields["connector"])
	assert.NotContains(t, fields, "stream")

	assert.Same(t, base, FromContext(context.Background(), base))
}
