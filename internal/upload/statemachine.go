// Package upload implements the tus-protocol upload state machine that
// drives a Layer from creation through a completed chunked upload.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gridwalk-io/gridwalk/internal/chunkstore"
	"github.com/gridwalk-io/gridwalk/internal/layer"
)

var (
	// ErrOffsetMismatch is the sentinel AppendChunk's *OffsetMismatchError
	// matches against errors.Is, for callers that only care that it
	// happened and not the expected/received values.
	ErrOffsetMismatch = errors.New("upload: offset mismatch")
	// ErrNotUploading is returned by AppendChunk when the layer is not in
	// StatusUploading (it already completed, failed, or was cancelled).
	ErrNotUploading = errors.New("upload: layer is not in uploading state")
	// ErrExceedsDeclaredSize is returned when a chunk would push
	// current_offset past the layer's declared total size.
	ErrExceedsDeclaredSize = errors.New("upload: chunk exceeds declared total size")
	// ErrLengthAlreadyDeclared is returned by DeclareLength when the
	// layer's total size is already known.
	ErrLengthAlreadyDeclared = errors.New("upload: length already declared")
)

// OffsetMismatchError is returned by AppendChunk when the caller's
// Upload-Offset does not match the layer's recorded current_offset. It
// carries both values so the HTTP layer can surface them verbatim, per
// spec.md §6.2/§7's expected/received response fields.
type OffsetMismatchError struct {
	Expected int64
	Received int64
}

func (e *OffsetMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrOffsetMismatch, e.Expected, e.Received)
}

// Is lets errors.Is(err, ErrOffsetMismatch) match, for callers that only
// need to detect the condition without the specific values.
func (e *OffsetMismatchError) Is(target error) bool {
	return target == ErrOffsetMismatch
}

// Clock is the source of "now", injected so tests can control it.
type Clock func() time.Time

// StateMachine drives Layer creation and chunk appends. It composes the
// MetadataStore, the ChunkStore, and the per-layer Locker; it does not
// itself talk to the SpatialStore — completion triggers a caller-supplied
// Ingestor instead, keeping the upload/ingest boundary spec.md draws
// explicit in the code.
type StateMachine struct {
	Layers layer.Store
	Chunks *chunkstore.Store
	Locker *chunkstore.Locker
	Now    Clock
	Ingest Ingestor
}

// Ingestor is invoked once a layer's upload reaches its declared total
// size. It is expected to move the layer to Ready or Failed itself;
// StateMachine only guarantees it is called at most once per upload.
type Ingestor interface {
	Ingest(ctx context.Context, l *layer.Layer) error
}

// CreateParams mirrors the POST /layers request: a client-chosen name,
// declared total size (nil if deferred), and the upload's content format.
type CreateParams struct {
	Name        string
	TotalSize   *int64
	DeferLength bool
	UploadType  string
}

// Create provisions a new Layer in StatusUploading and an empty chunk
// file for it.
func (sm *StateMachine) Create(ctx context.Context, p CreateParams) (*layer.Layer, error) {
	if !p.DeferLength && p.TotalSize == nil {
		return nil, fmt.Errorf("upload: create: either TotalSize or DeferLength must be set")
	}

	now := sm.now()
	l := &layer.Layer{
		ID:            uuid.New(),
		Status:        layer.StatusUploading,
		Name:          p.Name,
		UploadType:    &p.UploadType,
		TotalSize:     p.TotalSize,
		CurrentOffset: 0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := sm.Chunks.Create(ctx, l.ID); err != nil {
		return nil, err
	}
	if err := sm.Layers.Save(ctx, l); err != nil {
		_ = sm.Chunks.Remove(ctx, l.ID)
		return nil, err
	}
	return l, nil
}

// DeclareLength sets a previously-deferred layer's total size. It is the
// Go analogue of the Upload-Defer-Length flow: a client that started
// without a known size can supply it on a later PATCH via Upload-Length.
func (sm *StateMachine) DeclareLength(ctx context.Context, id uuid.UUID, totalSize int64) (*layer.Layer, error) {
	l, err := sm.Layers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != layer.StatusUploading {
		return nil, ErrNotUploading
	}
	if l.TotalSize != nil {
		return nil, ErrLengthAlreadyDeclared
	}

	l.TotalSize = &totalSize
	l.UpdatedAt = sm.now()
	if err := sm.Layers.Save(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// AppendChunk appends body to id's chunk file at offset, validating the
// tus offset invariant and the declared-size bound, then advances
// current_offset. If this chunk completes the upload (current_offset
// reaches total_size), it moves the layer to StatusProcessing and
// invokes the Ingestor; the Ingestor is responsible for the final
// Ready/Failed transition.
//
// Callers must hold sm.Locker's lock for id for the duration of this
// call; AppendChunk does not acquire it itself so that the HTTP PATCH
// handler can hold the lock across header validation and DeclareLength
// as well.
func (sm *StateMachine) AppendChunk(ctx context.Context, id uuid.UUID, offset int64, body io.Reader) (*layer.Layer, error) {
	l, err := sm.Layers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != layer.StatusUploading {
		return nil, ErrNotUploading
	}
	if offset != l.CurrentOffset {
		return nil, &OffsetMismatchError{Expected: l.CurrentOffset, Received: offset}
	}

	// A prior AppendChunk may have fsynced bytes to disk and then crashed
	// or been aborted before Layers.Save recorded the new offset (spec.md
	// §5's crash-consistency case). Truncate any such leftover bytes back
	// to the layer's last-known-good offset before writing this chunk, so
	// the append below always starts from a file whose length matches
	// current_offset.
	if err := sm.Chunks.Reconcile(ctx, id, l.CurrentOffset); err != nil {
		return nil, err
	}

	limited := body
	if l.SizeKnown() {
		remaining := l.RemainingBytes()
		limited = &limitedReader{r: body, n: remaining + 1}
	}

	n, err := sm.Chunks.Append(ctx, id, limited)
	if err != nil {
		return nil, err
	}
	if l.SizeKnown() && n > l.RemainingBytes() {
		// The limitedReader let through remaining+1 bytes specifically so
		// this overshoot is detectable. l.CurrentOffset has not been
		// mutated yet, so it is still the file's length before this call;
		// truncate back to it rather than to total_size, which would
		// leave unvalidated bytes from this rejected chunk on disk.
		_ = sm.Chunks.Reconcile(ctx, id, l.CurrentOffset)
		return nil, ErrExceedsDeclaredSize
	}

	l.CurrentOffset += n
	l.UpdatedAt = sm.now()

	complete := l.SizeKnown() && l.CurrentOffset >= *l.TotalSize
	if complete {
		l.Status = layer.StatusProcessing
	}
	if err := sm.Layers.Save(ctx, l); err != nil {
		return nil, err
	}

	if complete && sm.Ingest != nil {
		if err := sm.Ingest.Ingest(ctx, l); err != nil {
			return l, err
		}
	}
	return l, nil
}

func (sm *StateMachine) now() time.Time {
	if sm.Now != nil {
		return sm.Now()
	}
	return time.Now()
}

// limitedReader is io.LimitReader but returning the underlying error
// instead of masking it, since AppendChunk needs to distinguish "client
// sent exactly n bytes" from "client sent more than n and got cut off".
type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	return n, err
}
