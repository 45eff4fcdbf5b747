// Package destination defines the connector-facing model of nebula-sync:
// stream descriptors, records, batches and the Writer / StreamLoader
// capabilities a destination connector implements.
//
// # Lifecycle
//
// For every sync the engine calls, in order:
//
//	writer.Setup(ctx)
//	loader, _ := writer.CreateStreamLoader(stream)   // once per stream
//	loader.Start(ctx)
//	loader.ProcessRecords(ctx, records, totalSizeBytes) // once per spilled file
//	loader.ProcessBatch(ctx, batch)                   // until the batch is Complete
//	loader.Close(ctx, failure)
//	writer.Teardown(ctx, failure)
//
// ProcessRecords and ProcessBatch are invoked concurrently for different
// spilled files of the same stream, so loaders must be safe for concurrent use.
package destination

import (
	"io"

	"github.com/ajitpratap0/nebula-sync/pkg/json"
	"github.com/ajitpratap0/nebula-sync/pkg/nebulaerrors"
)

// Descriptor identifies a stream. An empty Namespace means none.
type Descriptor struct {
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// String renders namespace.name, or name alone without a namespace
func (d Descriptor) String() string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "." + d.Name
}

// Stream is one configured stream of the catalog
type Stream struct {
	Descriptor
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// Catalog is the ordered list of streams a sync writes
type Catalog struct {
	Streams []Stream `json:"streams"`
}

// Descriptors returns the stream descriptors in catalog order
func (c Catalog) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.Streams))
	for _, s := range c.Streams {
		out = append(out, s.Descriptor)
	}
	return out
}

// Find returns the stream with the given descriptor
func (c Catalog) Find(d Descriptor) (Stream, bool) {
	for _, s := range c.Streams {
		if s.Descriptor == d {
			return s, true
		}
	}
	return Stream{}, false
}

// ParseCatalog decodes a JSON catalog:
//
//	{"streams": [{"namespace": "public", "name": "users", "json_schema": {...}}]}
func ParseCatalog(r io.Reader) (Catalog, error) {
	var catalog Catalog
	if err := json.GetDecoder(r).Decode(&catalog); err != nil {
		return Catalog{}, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "failed to parse catalog")
	}
	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

// Validate checks that every stream is named and appears once
func (c Catalog) Validate() error {
	seen := make(map[Descriptor]struct{}, len(c.Streams))
	for i, s := range c.Streams {
		if s.Name == "" {
			return nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "catalog stream without a name").
				WithDetail("position", i)
		}
		if _, dup := seen[s.Descriptor]; dup {
			return nebulaerrors.New(nebulaerrors.ErrorTypeValidation, "duplicate stream in catalog").
				WithDetail("stream", s.Descriptor.String())
		}
		seen[s.Descriptor] = struct{}{}
	}
	return nil
}
