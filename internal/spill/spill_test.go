package spill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/pkg/compression"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/json"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/ranges"
)

var users = destination.Descriptor{Namespace: "public", Name: "users"}

func TestLocalProvider_RoundTrip(t *testing.T) {
	for _, alg := range []compression.Algorithm{compression.None, compression.Zstd, compression.LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			p, err := NewLocalProvider(filepath.Join(t.TempDir(), "spill"), alg, zap.NewNop())
			require.NoError(t, err)

			w, err := p.CreateFile(users)
			require.NoError(t, err)
			assert.True(t, w.IsEmpty())
			assert.Nil(t, w.Range())

			records := []destination.Record{
				{Namespace: "public", Stream: "users", Data: json.RawMessage(`{"id":1}`), EmittedAt: 1},
				{Namespace: "public", Stream: "users", Data: json.RawMessage(`{"id":2}`), EmittedAt: 2},
			}
			require.NoError(t, w.Append(7, 10, records[0]))
			require.NoError(t, w.Append(8, 12, records[1]))
			assert.Equal(t, int64(22), w.TotalSizeBytes())
			assert.Equal(t, int64(8), w.LastIndex())
			assert.Equal(t, ranges.New(7, 9), *w.Range())

			file, err := w.Close()
			require.NoError(t, err)
			assert.Equal(t, int64(2), file.RecordCount)
			assert.Equal(t, int64(22), file.TotalSizeBytes)
			assert.Equal(t, alg, file.Compression)
			assert.Contains(t, filepath.Base(file.Path), "public.users")

			r, err := p.OpenFile(file)
			require.NoError(t, err)
			got, err := destination.Collect(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, records, got)

			require.NoError(t, p.Delete(file.Path))
			require.NoError(t, p.Delete(file.Path))
			_, err = os.Stat(file.Path)
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestFileWriter_Discard(t *testing.T) {
	p, err := NewLocalProvider(t.TempDir(), compression.None, zap.NewNop())
	require.NoError(t, err)

	w, err := p.CreateFile(users)
	require.NoError(t, err)
	require.NoError(t, w.Append(0, 1, destination.Record{Stream: "users", Data: json.RawMessage(`{}`)}))
	require.NoError(t, w.Discard())

	_, err = os.Stat(w.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestFileReader_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"stream\":\"users\",\"data\":{}}\nnot json\n"), 0o600))

	p, err := NewLocalProvider(dir, compression.None, zap.NewNop())
	require.NoError(t, err)
	r, err := p.OpenFile(&destination.SpilledFile{Path: path})
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Next())
	assert.False(t, r.Next())
	require.Error(t, r.Err())
	assert.True(t, nebulaerrors.IsType(r.Err(), nebulaerrors.ErrorTypeData))
}
