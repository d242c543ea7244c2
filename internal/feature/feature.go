// Package feature defines the FeatureReader contract: a uniform,
// streaming view over a geospatial source file (GeoPackage, GeoJSON, ...)
// that the ingestion pipeline consumes one feature at a time.
package feature

import (
	"context"
	"errors"

	"github.com/gridwalk-io/gridwalk/internal/spatial"
)

// ErrUnsupportedFormat is returned by Registry.Open when no registered
// Reader accepts the upload type.
var ErrUnsupportedFormat = errors.New("feature: unsupported format")

// Feature is one record from a source dataset: its geometry, already
// encoded as WKB in EPSG:4326, plus its non-geometry attribute values.
type Feature struct {
	WKB   []byte
	Attrs map[string]any
}

// Layer is a lazy, finite, single-consumer sequence of features drawn
// from one table/collection of a Dataset. Next returns (nil, nil) once
// the sequence is exhausted; it must not be called again afterwards.
type Layer interface {
	Name() string
	Fields() []spatial.FieldDef
	Next(ctx context.Context) (*Feature, error)
}

// Dataset is an open source file. Its Layers are read in full by the
// ingestion pipeline and then the Dataset is closed; there is no random
// access or re-open.
type Dataset interface {
	Layers(ctx context.Context) ([]Layer, error)
	Close() error
}

// Reader opens a Dataset from a local path. Implementations are adapters
// over a specific file format and are expected to run inside a blocking
// worker goroutine: the underlying format libraries (cgo-based sqlite3
// drivers, in particular) are not safe to call from arbitrary
// cooperative-scheduling contexts.
type Reader interface {
	// Accepts reports whether this Reader can open uploadType (e.g.
	// "geopackage", "geojson").
	Accepts(uploadType string) bool
	Open(ctx context.Context, path string) (Dataset, error)
}

// Registry dispatches to the first Reader that accepts a given upload
// type.
type Registry struct {
	readers []Reader
}

// NewRegistry returns a Registry over readers, tried in order.
func NewRegistry(readers ...Reader) *Registry {
	return &Registry{readers: readers}
}

// Open finds a Reader accepting uploadType and opens path with it.
func (r *Registry) Open(ctx context.Context, uploadType, path string) (Dataset, error) {
	for _, reader := range r.readers {
		if reader.Accepts(uploadType) {
			return reader.Open(ctx, path)
		}
	}
	return nil, ErrUnsupportedFormat
}
