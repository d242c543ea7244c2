// Package layer defines the central Layer entity and the MetadataStore
// contract that persists it.
package layer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Layer. It is serialized as its
// lowercase string form wherever it crosses a storage or wire boundary.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusReady, StatusError, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Layer is the central entity: a user-submitted geospatial dataset and its
// upload/ingestion lifecycle record.
type Layer struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Status        Status    `db:"status" json:"status"`
	Name          string    `db:"name" json:"name"`
	UploadType    *string   `db:"upload_type" json:"upload_type,omitempty"`
	TotalSize     *int64    `db:"total_size" json:"total_size,omitempty"`
	CurrentOffset int64     `db:"current_offset" json:"current_offset"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// SizeKnown reports whether the client declared a total size at creation
// time, as opposed to deferring it (Upload-Defer-Length).
func (l *Layer) SizeKnown() bool {
	return l.TotalSize != nil
}

// RemainingBytes returns how many bytes are left to reach TotalSize. It
// panics if the total size is not known; callers must check SizeKnown first.
func (l *Layer) RemainingBytes() int64 {
	return *l.TotalSize - l.CurrentOffset
}

var (
	// ErrNotFound is returned by Store.Get when no row matches the id.
	ErrNotFound = errors.New("layer: not found")
	// ErrDecode is returned when a persisted value (e.g. an unknown status
	// string) cannot be parsed back into a Layer.
	ErrDecode = errors.New("layer: decode error")
)

// Store is the MetadataStore contract: CRUD over Layer rows keyed by id.
// Implementations must not mutate CreatedAt on update, and must order
// List results by created_at descending, ties broken by id.
type Store interface {
	// Save inserts or updates the row by ID. On conflict it overwrites
	// Status, Name, UploadType, TotalSize, CurrentOffset and UpdatedAt;
	// CreatedAt is left untouched by updates.
	Save(ctx context.Context, l *Layer) error
	// Get returns the row for id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Layer, error)
	// List returns layers ordered by created_at descending, ties broken
	// by id. A limit of 0 is treated as the default of 50.
	List(ctx context.Context, limit, offset int) ([]*Layer, error)
}
