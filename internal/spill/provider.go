// Package spill buffers stream records in local JSONL files until they are
// handed to a stream loader.
package spill

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/pkg/compression"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// Provider creates, opens and deletes spill files
type Provider interface {
	CreateFile(stream destination.Descriptor) (*FileWriter, error)
	OpenFile(file *destination.SpilledFile) (*FileReader, error)
	Delete(path string) error
}

// LocalProvider keeps spill files in a local directory
type LocalProvider struct {
	dir         string
	compression compression.Algorithm
	logger      *zap.Logger
}

// NewLocalProvider creates a provider writing to dir, which is created if
// missing. An empty dir selects the OS temp directory.
func NewLocalProvider(dir string, alg compression.Algorithm, logger *zap.Logger) (*LocalProvider, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to create spill directory").
			WithDetail("dir", dir)
	}
	return &LocalProvider{
		dir:         dir,
		compression: alg,
		logger:      logger.With(zap.String("component", "spill_provider")),
	}, nil
}

// Dir returns the spill directory
func (p *LocalProvider) Dir() string {
	return p.dir
}

// CreateFile creates a new, uniquely named spill file for stream
func (p *LocalProvider) CreateFile(stream destination.Descriptor) (*FileWriter, error) {
	name := "nebula-sync-" + sanitize(stream.String()) + "-" + uuid.NewString() + ".jsonl" + p.compression.Extension()
	path := filepath.Join(p.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path is built from a uuid
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to create spill file").
			WithDetail("path", path)
	}
	w, err := newFileWriter(f, p.compression)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	p.logger.Debug("created spill file", zap.String("path", path), zap.String("stream", stream.String()))
	return w, nil
}

// OpenFile opens a closed spill file for reading
func (p *LocalProvider) OpenFile(file *destination.SpilledFile) (*FileReader, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to open spill file").
			WithDetail("path", file.Path)
	}
	r, err := newFileReader(f, file.Compression)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Delete removes a spill file. Missing files are ignored.
func (p *LocalProvider) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeFile, "failed to delete spill file").
			WithDetail("path", path)
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
