package destination_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
	"github.com/ajitpratap0/nebula-sync/pkg/ranges"
)

func TestParseCatalog(t *testing.T) {
	catalog, err := destination.ParseCatalog(strings.NewReader(`{
		"streams": [
			{"namespace": "public", "name": "users", "json_schema": {"type": "object"}},
			{"name": "events"}
		]
	}`))
	require.NoError(t, err)

	assert.Equal(t, []destination.Descriptor{
		{Namespace: "public", Name: "users"},
		{Name: "events"},
	}, catalog.Descriptors())
	assert.JSONEq(t, `{"type":"object"}`, string(catalog.Streams[0].JSONSchema))

	stream, ok := catalog.Find(destination.Descriptor{Name: "events"})
	assert.True(t, ok)
	assert.Equal(t, "events", stream.String())
	assert.Equal(t, "public.users", catalog.Streams[0].String())
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		errType nebulaerrors.ErrorType
	}{
		{"malformed", `{"streams": [`, nebulaerrors.ErrorTypeConfig},
		{"unnamed", `{"streams": [{"namespace": "x"}]}`, nebulaerrors.ErrorTypeValidation},
		{"duplicate", `{"streams": [{"name": "a"}, {"name": "a"}]}`, nebulaerrors.ErrorTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := destination.ParseCatalog(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, nebulaerrors.IsType(err, tt.errType))
		})
	}
}

func TestBatchEnvelope(t *testing.T) {
	r := ranges.New(0, 10)
	spilled := destination.NewEnvelope(&destination.SpilledFile{Path: "/tmp/a"}, &r)
	assert.Equal(t, destination.Staged, spilled.Batch.State())

	persisted := destination.WithBatch(spilled, destination.SimpleBatch{BatchState: destination.Persisted})
	assert.Equal(t, &r, persisted.Range)
	assert.True(t, persisted.Batch.State().IsPersisted())

	erased := persisted.Erase()
	assert.Equal(t, destination.Persisted, erased.Batch.State())
	assert.Equal(t, "persisted", erased.Batch.State().String())
}

func TestSliceIterator(t *testing.T) {
	records := []destination.Record{{Stream: "a"}, {Stream: "b"}}
	got, err := destination.Collect(destination.NewSliceIterator(records))
	require.NoError(t, err)
	assert.Equal(t, records, got)

	empty := destination.NewSliceIterator(nil)
	assert.False(t, empty.Next())
	assert.False(t, empty.Next())
}
