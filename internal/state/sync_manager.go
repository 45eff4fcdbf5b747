package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// SyncManager owns the StreamManagers of a sync and the started loaders.
type SyncManager struct {
	order   []destination.Descriptor
	streams map[destination.Descriptor]*StreamManager

	mu          sync.Mutex
	loaders     map[destination.Descriptor]destination.StreamLoader
	loaderReady map[destination.Descriptor]chan struct{}
	failure     error
	teardownRan bool
}

// NewSyncManager creates one StreamManager per catalog stream
func NewSyncManager(catalog destination.Catalog) *SyncManager {
	m := &SyncManager{
		order:       catalog.Descriptors(),
		streams:     make(map[destination.Descriptor]*StreamManager, len(catalog.Streams)),
		loaders:     make(map[destination.Descriptor]destination.StreamLoader, len(catalog.Streams)),
		loaderReady: make(map[destination.Descriptor]chan struct{}, len(catalog.Streams)),
	}
	for _, d := range m.order {
		m.streams[d] = NewStreamManager(d)
		m.loaderReady[d] = make(chan struct{})
	}
	return m
}

// Streams returns the stream descriptors in catalog order
func (m *SyncManager) Streams() []destination.Descriptor {
	out := make([]destination.Descriptor, len(m.order))
	copy(out, m.order)
	return out
}

// StreamManager returns the manager of stream d
func (m *SyncManager) StreamManager(d destination.Descriptor) (*StreamManager, error) {
	sm, ok := m.streams[d]
	if !ok {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeNotFound, "stream not in catalog").
			WithDetail("stream", d.String())
	}
	return sm, nil
}

// RegisterStartedStreamLoader publishes the started loader of stream d and
// releases anyone waiting for it. A stream that already failed rejects the
// loader, which stays owned by the caller.
func (m *SyncManager) RegisterStartedStreamLoader(d destination.Descriptor, loader destination.StreamLoader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ready, ok := m.loaderReady[d]
	if !ok {
		return nebulaerrors.New(nebulaerrors.ErrorTypeNotFound, "stream not in catalog").
			WithDetail("stream", d.String())
	}
	// failure handlers mark the stream failed before looking up its loader
	if cause := m.streams[d].Failure(); cause != nil {
		return nebulaerrors.Wrap(cause, nebulaerrors.ErrorTypeStream, "stream failed before its loader registered").
			WithDetail("stream", d.String())
	}
	if _, exists := m.loaders[d]; exists {
		return nebulaerrors.New(nebulaerrors.ErrorTypeInternal, "stream loader already registered").
			WithDetail("stream", d.String())
	}
	m.loaders[d] = loader
	close(ready)
	return nil
}

// StreamLoader returns the started loader of stream d, if registered
func (m *SyncManager) StreamLoader(d destination.Descriptor) (destination.StreamLoader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loader, ok := m.loaders[d]
	return loader, ok
}

// GetOrAwaitStreamLoader blocks until the loader of stream d is registered.
// It returns early with an error when the stream fails or ctx ends.
func (m *SyncManager) GetOrAwaitStreamLoader(ctx context.Context, d destination.Descriptor) (destination.StreamLoader, error) {
	sm, err := m.StreamManager(d)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	ready := m.loaderReady[d]
	m.mu.Unlock()

	select {
	case <-ready:
		loader, _ := m.StreamLoader(d)
		return loader, nil
	case <-sm.Failed():
		return nil, nebulaerrors.Wrap(sm.Failure(), nebulaerrors.ErrorTypeStream, "stream failed before its loader started").
			WithDetail("stream", d.String())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AllStreamsClosed reports whether every stream is closed
func (m *SyncManager) AllStreamsClosed() bool {
	for _, d := range m.order {
		if !m.streams[d].IsStreamClosed() {
			return false
		}
	}
	return true
}

// ClaimTeardown returns true for exactly one caller
func (m *SyncManager) ClaimTeardown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.teardownRan {
		return false
	}
	m.teardownRan = true
	return true
}

// MarkFailed records the sync failure. Only the first failure is kept.
func (m *SyncManager) MarkFailed(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return false
	}
	m.failure = err
	return true
}

// Failure returns the sync failure, if any
func (m *SyncManager) Failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

// StreamFailures joins the failures of every failed stream in catalog order,
// or returns nil when no stream failed
func (m *SyncManager) StreamFailures() error {
	var errs []error
	for _, d := range m.order {
		if err := m.streams[d].Failure(); err != nil {
			errs = append(errs, fmt.Errorf("stream %s: %w", d, err))
		}
	}
	return errors.Join(errs...)
}
