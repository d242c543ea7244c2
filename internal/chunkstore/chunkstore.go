// Package chunkstore implements the ChunkStore contract: append-only local
// scratch storage for in-flight layer uploads.
package chunkstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var defaultFilePerm = os.FileMode(0644)

// Store is a local-filesystem append-only ChunkStore. Each layer's bytes
// live in a single flat file named by its id under Path; there is no
// sidecar info file because offset/size bookkeeping lives in the
// MetadataStore (layer.Store), not alongside the bytes.
type Store struct {
	// Path is the scratch directory chunks are written under
	// (TEMP_DATA_PATH, default /tmp). Store does not create it.
	Path string
}

// New returns a Store rooted at path.
func New(path string) *Store {
	return &Store{Path: path}
}

func (s *Store) binPath(id uuid.UUID) string {
	return filepath.Join(s.Path, id.String())
}

// PathFor returns the on-disk path for id's chunk file, for callers (e.g. the
// ingestion pipeline) that need to open it for reading once upload
// completes.
func (s *Store) PathFor(id uuid.UUID) string {
	return s.binPath(id)
}

// Create creates an empty chunk file for id. It is an error for the file
// to already exist.
func (s *Store) Create(ctx context.Context, id uuid.UUID) error {
	file, err := os.OpenFile(s.binPath(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return fmt.Errorf("chunkstore: create: %w", err)
	}
	return file.Close()
}

// Append writes src to the end of id's chunk file and returns the number
// of bytes written. It fsyncs before returning so current_offset can never
// be persisted ahead of what is durably on disk (the crash-consistency
// invariant spec.md §6 requires).
func (s *Store) Append(ctx context.Context, id uuid.UUID, src io.Reader) (int64, error) {
	file, err := os.OpenFile(s.binPath(id), os.O_WRONLY|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return 0, fmt.Errorf("chunkstore: open: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(file, src)
	if err == io.ErrUnexpectedEOF {
		// The client paused or dropped the connection mid-PATCH; the bytes
		// received so far are still valid and must be kept.
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("chunkstore: append: %w", err)
	}

	if err := file.Sync(); err != nil {
		return n, fmt.Errorf("chunkstore: fsync: %w", err)
	}
	return n, nil
}

// Size returns the current on-disk size of id's chunk file.
func (s *Store) Size(ctx context.Context, id uuid.UUID) (int64, error) {
	info, err := os.Stat(s.binPath(id))
	if err != nil {
		return 0, fmt.Errorf("chunkstore: stat: %w", err)
	}
	return info.Size(), nil
}

// Reconcile truncates id's chunk file down to offset if the file has
// grown past it, recovering from a crash between the disk write and the
// metadata commit. It never extends the file; growing it back is not
// possible since the extra bytes were never recorded as belonging to any
// declared offset range.
func (s *Store) Reconcile(ctx context.Context, id uuid.UUID, offset int64) error {
	size, err := s.Size(ctx, id)
	if err != nil {
		return err
	}
	if size <= offset {
		return nil
	}
	return os.Truncate(s.binPath(id), offset)
}

// Open returns a reader over id's complete chunk file, for the ingestion
// pipeline to hand to a FeatureReader once the upload is complete.
func (s *Store) Open(ctx context.Context, id uuid.UUID) (*os.File, error) {
	f, err := os.Open(s.binPath(id))
	if err != nil {
		return nil, fmt.Errorf("chunkstore: open for read: %w", err)
	}
	return f, nil
}

// Remove deletes id's chunk file. Called after a successful ingestion
// commit, and by upload.StateMachine.Create when the new layer cannot be
// saved; not an error if the file is already gone.
func (s *Store) Remove(ctx context.Context, id uuid.UUID) error {
	err := os.Remove(s.binPath(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chunkstore: remove: %w", err)
	}
	return nil
}
