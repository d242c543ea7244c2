// Package spatial implements the SpatialStore contract: a PostGIS-backed
// surface for creating per-layer feature tables, streaming features into
// them transactionally, and serving pre-rendered MVT tiles out of them.
package spatial

import (
	"context"
	"errors"

	"github.com/go-spatial/geom"
	"github.com/google/uuid"
)

// ErrLayerNotFound is returned by GetTile and Extent when no feature
// table exists for the given layer id.
var ErrLayerNotFound = errors.New("spatial: layer not found")

// ErrEmptyDataset is returned by CreateLayer's caller (the ingestion
// pipeline) when a FeatureReader produced zero features; per spec.md this
// is treated as an ingestion failure rather than a silently-empty layer.
var ErrEmptyDataset = errors.New("spatial: dataset contains no features")

// FieldDef describes one non-geometry attribute column a feature table
// should carry, taken from the FeatureReader's schema introspection.
type FieldDef struct {
	Name string
	Type FieldType
}

// FieldType is a small, storage-agnostic type tag. Concrete
// implementations translate it into native column types.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldBool
)

// Store is the SpatialStore contract.
type Store interface {
	// CreateLayer provisions a feature table for id with a geometry column
	// (not restricted to one geometry type) and the given attribute columns.
	// It must be idempotent under retry: calling it twice for the same id
	// before a commit must not leave two tables behind.
	CreateLayer(ctx context.Context, id uuid.UUID, fields []FieldDef) error

	// DropLayer removes a layer's feature table entirely. Used to roll
	// back a failed ingestion and to honor administrative deletes.
	DropLayer(ctx context.Context, id uuid.UUID) error

	// BeginTx opens a transaction scoped to id's feature table, for the
	// ingestion pipeline to stream inserts into before a single commit.
	BeginTx(ctx context.Context, id uuid.UUID) (Tx, error)

	// GetTile renders id's feature table at web-mercator tile z/x/y as a
	// Mapbox Vector Tile. It returns a nil slice (not an error) when the
	// tile has no intersecting features, consistent with the public tile
	// API returning 204 rather than 404 for genuinely empty tiles.
	GetTile(ctx context.Context, id uuid.UUID, z, x, y int) ([]byte, error)

	// Extent returns the bounding box of all geometry currently stored for
	// id, or ErrLayerNotFound if the layer's table does not exist.
	Extent(ctx context.Context, id uuid.UUID) (geom.Extent, error)

	Close() error
}

// Tx is a single ingestion transaction against one layer's feature table.
type Tx interface {
	// InsertFeature appends one feature's geometry (as WKB) and attribute
	// values to the table. Implementations batch internally; callers must
	// not assume each call round-trips to the database.
	InsertFeature(ctx context.Context, wkb []byte, attrs map[string]any) error

	// Commit finalizes all inserted features and makes them visible to
	// GetTile/Extent. It must be atomic: partial commits are never
	// observable.
	Commit(ctx context.Context) error

	// Rollback discards all inserted features. Safe to call after Commit
	// has already succeeded (no-op in that case).
	Rollback(ctx context.Context) error
}
