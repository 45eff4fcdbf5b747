// Package registry maps destination types to the factories that build their
// writers. Connectors register themselves from init functions.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-sync/pkg/config"
	"github.com/ajitpratap0/nebula-sync/pkg/destination"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// DestinationFactory creates a configured destination writer
type DestinationFactory func(cfg config.DestinationConfig, logger *zap.Logger) (destination.Writer, error)

// ConnectorInfo describes a registered connector
type ConnectorInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// Registry manages destination registration and instantiation
type Registry struct {
	mu           sync.RWMutex
	destinations map[string]DestinationFactory
	infos        map[string]ConnectorInfo
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		destinations: make(map[string]DestinationFactory),
		infos:        make(map[string]ConnectorInfo),
	}
}

// RegisterDestination registers a destination factory under info.Name
func (r *Registry) RegisterDestination(info ConnectorInfo, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[info.Name]; exists {
		return nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "destination connector already registered").
			WithDetail("name", info.Name)
	}
	r.destinations[info.Name] = factory
	r.infos[info.Name] = info
	return nil
}

// CreateDestination builds the writer selected by cfg.Type
func (r *Registry) CreateDestination(cfg config.DestinationConfig, logger *zap.Logger) (destination.Writer, error) {
	r.mu.RLock()
	factory, exists := r.destinations[cfg.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, nebulaerrors.New(nebulaerrors.ErrorTypeConfig, "destination connector not found").
			WithDetail("name", cfg.Type)
	}
	writer, err := factory(cfg, logger.With(zap.String("connector", cfg.Type)))
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to create destination connector").
			WithDetail("name", cfg.Type)
	}
	return writer, nil
}

// ListDestinations returns the registered connectors sorted by name
func (r *Registry) ListDestinations() []ConnectorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ConnectorInfo, 0, len(r.infos))
	for _, info := range r.infos {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// HasDestination checks if a destination connector is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[name]
	return exists
}

// RegisterDestination registers a destination in the global registry
func RegisterDestination(info ConnectorInfo, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(info, factory)
}

// CreateDestination creates a destination from the global registry
func CreateDestination(cfg config.DestinationConfig, logger *zap.Logger) (destination.Writer, error) {
	return globalRegistry.CreateDestination(cfg, logger)
}

// ListDestinations returns the connectors of the global registry
func ListDestinations() []ConnectorInfo {
	return globalRegistry.ListDestinations()
}

// HasDestination checks the global registry
func HasDestination(name string) bool {
	return globalRegistry.HasDestination(name)
}
