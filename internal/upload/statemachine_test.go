package upload

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gridwalk-io/gridwalk/internal/chunkstore"
	"github.com/gridwalk-io/gridwalk/internal/layer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	rows map[uuid.UUID]*layer.Layer
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uuid.UUID]*layer.Layer)}
}

func (m *memStore) Save(ctx context.Context, l *layer.Layer) error {
	cp := *l
	m.rows[l.ID] = &cp
	return nil
}

func (m *memStore) Get(ctx context.Context, id uuid.UUID) (*layer.Layer, error) {
	l, ok := m.rows[id]
	if !ok {
		return nil, layer.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) List(ctx context.Context, limit, offset int) ([]*layer.Layer, error) {
	var out []*layer.Layer
	for _, l := range m.rows {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

type fakeIngestor struct {
	called []uuid.UUID
}

func (f *fakeIngestor) Ingest(ctx context.Context, l *layer.Layer) error {
	f.called = append(f.called, l.ID)
	l.Status = layer.StatusReady
	return nil
}

func newTestMachine(t *testing.T) (*StateMachine, *fakeIngestor) {
	t.Helper()
	ing := &fakeIngestor{}
	sm := &StateMachine{
		Layers: newMemStore(),
		Chunks: chunkstore.New(t.TempDir()),
		Locker: chunkstore.NewLocker(),
		Now:    func() time.Time { return time.Unix(0, 0) },
		Ingest: ing,
	}
	return sm, ing
}

func TestCreateRequiresSizeOrDefer(t *testing.T) {
	sm, _ := newTestMachine(t)
	_, err := sm.Create(context.Background(), CreateParams{Name: "test"})
	assert.Error(t, err)
}

func TestAppendChunkAccumulatesOffsetAndCompletes(t *testing.T) {
	sm, ing := newTestMachine(t)
	size := int64(11)

	l, err := sm.Create(context.Background(), CreateParams{Name: "roads", TotalSize: &size, UploadType: "geojson"})
	require.NoError(t, err)
	assert.Equal(t, layer.StatusUploading, l.Status)

	l, err = sm.AppendChunk(context.Background(), l.ID, 0, bytes.NewReader([]byte("hello ")))
	require.NoError(t, err)
	assert.EqualValues(t, 6, l.CurrentOffset)
	assert.Equal(t, layer.StatusUploading, l.Status)

	l, err = sm.AppendChunk(context.Background(), l.ID, 6, bytes.NewReader([]byte("world")))
	require.NoError(t, err)
	assert.EqualValues(t, 11, l.CurrentOffset)
	assert.Equal(t, layer.StatusReady, l.Status)
	assert.Len(t, ing.called, 1)
}

func TestAppendChunkRejectsOffsetMismatch(t *testing.T) {
	sm, _ := newTestMachine(t)
	size := int64(10)
	l, err := sm.Create(context.Background(), CreateParams{Name: "x", TotalSize: &size})
	require.NoError(t, err)

	_, err = sm.AppendChunk(context.Background(), l.ID, 5, bytes.NewReader([]byte("abc")))
	assert.ErrorIs(t, err, ErrOffsetMismatch)
}

func TestAppendChunkRejectsOversizedChunk(t *testing.T) {
	sm, _ := newTestMachine(t)
	size := int64(3)
	l, err := sm.Create(context.Background(), CreateParams{Name: "x", TotalSize: &size})
	require.NoError(t, err)

	_, err = sm.AppendChunk(context.Background(), l.ID, 0, bytes.NewReader([]byte("abcdef")))
	assert.ErrorIs(t, err, ErrExceedsDeclaredSize)

	// Spec.md §8 scenario 3: a rejected oversized chunk must leave the
	// chunk file untouched, not truncated to total_size or left with the
	// rejected bytes appended.
	onDisk, err := sm.Chunks.Size(context.Background(), l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, onDisk)

	stored, err := sm.Layers.Get(context.Background(), l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stored.CurrentOffset)

	// A legitimate retry at the still-current offset must now succeed and
	// must not be corrupted by leftover bytes from the rejected attempt.
	retried, err := sm.AppendChunk(context.Background(), l.ID, 0, bytes.NewReader([]byte("abc")))
	require.NoError(t, err)
	assert.EqualValues(t, 3, retried.CurrentOffset)

	onDisk, err = sm.Chunks.Size(context.Background(), l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, onDisk)
}

func TestAppendChunkReconcilesLeftoverBytesFromCrashBeforeAppending(t *testing.T) {
	sm, _ := newTestMachine(t)
	size := int64(10)
	l, err := sm.Create(context.Background(), CreateParams{Name: "x", TotalSize: &size})
	require.NoError(t, err)

	l, err = sm.AppendChunk(context.Background(), l.ID, 0, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.EqualValues(t, 5, l.CurrentOffset)

	// Simulate a crash between a disk append and the metadata update: the
	// chunk file has more bytes on disk than current_offset records.
	_, err = sm.Chunks.Append(context.Background(), l.ID, bytes.NewReader([]byte("XXX")))
	require.NoError(t, err)

	// The next AppendChunk must truncate the stray bytes back to
	// current_offset before writing its own payload, per spec.md §5.
	l, err = sm.AppendChunk(context.Background(), l.ID, 5, bytes.NewReader([]byte("world")))
	require.NoError(t, err)
	assert.EqualValues(t, 10, l.CurrentOffset)

	onDisk, err := sm.Chunks.Size(context.Background(), l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, onDisk)
}

func TestDeclareLengthCompletesDeferredUpload(t *testing.T) {
	sm, _ := newTestMachine(t)
	l, err := sm.Create(context.Background(), CreateParams{Name: "x", DeferLength: true})
	require.NoError(t, err)
	assert.Nil(t, l.TotalSize)

	l, err = sm.DeclareLength(context.Background(), l.ID, 5)
	require.NoError(t, err)
	require.NotNil(t, l.TotalSize)
	assert.EqualValues(t, 5, *l.TotalSize)

	_, err = sm.DeclareLength(context.Background(), l.ID, 10)
	assert.ErrorIs(t, err, ErrLengthAlreadyDeclared)

	l, err = sm.AppendChunk(context.Background(), l.ID, 0, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)
	assert.EqualValues(t, 5, l.CurrentOffset)
	assert.Equal(t, layer.StatusReady, l.Status)
}
