package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamRoundTrip(t *testing.T) {
	original := []byte(strings.Repeat(`{"stream":"users","data":{"id":1,"name":"content content content"}}`+"\n", 200))

	for _, alg := range Algorithms {
		t.Run(string(alg), func(t *testing.T) {
			var compressed bytes.Buffer
			w, err := NewWriter(&compressed, alg)
			require.NoError(t, err)

			_, err = w.Write(original)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if alg != None {
				assert.Less(t, compressed.Len(), len(original))
			}

			r, err := NewReader(&compressed, alg)
			require.NoError(t, err)
			defer r.Close()

			decompressed, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, original, decompressed)
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"ZSTD", Zstd, false},
		{"lz4", LZ4, false},
		{"deflate", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "", None.Extension())
	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.Equal(t, ".lz4", LZ4.Extension())
}
