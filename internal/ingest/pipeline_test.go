package ingest

import (
	"context"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/google/uuid"
	"github.com/gridwalk-io/gridwalk/internal/chunkstore"
	"github.com/gridwalk-io/gridwalk/internal/feature"
	"github.com/gridwalk-io/gridwalk/internal/layer"
	"github.com/gridwalk-io/gridwalk/internal/spatial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	features []*feature.Feature
	fields   []spatial.FieldDef
}

func (r *fakeReader) Accepts(uploadType string) bool { return uploadType == "fake" }

func (r *fakeReader) Open(ctx context.Context, path string) (feature.Dataset, error) {
	return &fakeDataset{layer: &fakeLayer{features: append([]*feature.Feature(nil), r.features...), fields: r.fields}}, nil
}

type fakeDataset struct {
	layer *fakeLayer
}

func (d *fakeDataset) Layers(ctx context.Context) ([]feature.Layer, error) {
	return []feature.Layer{d.layer}, nil
}

func (d *fakeDataset) Close() error { return nil }

type fakeLayer struct {
	features []*feature.Feature
	fields   []spatial.FieldDef
	idx      int
}

func (l *fakeLayer) Name() string                     { return "fake" }
func (l *fakeLayer) Fields() []spatial.FieldDef        { return l.fields }
func (l *fakeLayer) Next(ctx context.Context) (*feature.Feature, error) {
	if l.idx >= len(l.features) {
		return nil, nil
	}
	f := l.features[l.idx]
	l.idx++
	return f, nil
}

type fakeSpatial struct {
	created  []uuid.UUID
	dropped  []uuid.UUID
	inserted int
	tx       *fakeTx
}

func (s *fakeSpatial) CreateLayer(ctx context.Context, id uuid.UUID, fields []spatial.FieldDef) error {
	s.created = append(s.created, id)
	return nil
}
func (s *fakeSpatial) DropLayer(ctx context.Context, id uuid.UUID) error {
	s.dropped = append(s.dropped, id)
	return nil
}
func (s *fakeSpatial) BeginTx(ctx context.Context, id uuid.UUID) (spatial.Tx, error) {
	s.tx = &fakeTx{spatial: s}
	return s.tx, nil
}
func (s *fakeSpatial) GetTile(ctx context.Context, id uuid.UUID, z, x, y int) ([]byte, error) {
	return nil, nil
}
func (s *fakeSpatial) Extent(ctx context.Context, id uuid.UUID) (geom.Extent, error) {
	return geom.Extent{}, nil
}
func (s *fakeSpatial) Close() error { return nil }

type fakeTx struct {
	spatial    *fakeSpatial
	committed  bool
	rolledBack bool
}

func (t *fakeTx) InsertFeature(ctx context.Context, wkb []byte, attrs map[string]any) error {
	t.spatial.inserted++
	return nil
}
func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type memStore struct {
	rows map[uuid.UUID]*layer.Layer
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
	return l, nil
}
func (m *memStore) List(ctx context.Context, limit, offset int) ([]*layer.Layer, error) {
	return nil, nil
}

func TestIngestCommitsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	chunks := chunkstore.New(dir)
	id := uuid.New()
	require.NoError(t, chunks.Create(context.Background(), id))

	sp := &fakeSpatial{}
	reader := &fakeReader{features: []*feature.Feature{
		{WKB: []byte{1, 2, 3}, Attrs: map[string]any{"name": "a"}},
		{WKB: []byte{4, 5, 6}, Attrs: map[string]any{"name": "b"}},
	}}
	stores := &memStore{rows: map[uuid.UUID]*layer.Layer{}}
	l := &layer.Layer{ID: id, Status: layer.StatusProcessing, UploadType: strPtr("fake")}
	stores.rows[id] = l

	p := &Pipeline{
		Readers: feature.NewRegistry(reader),
		Spatial: sp,
		Chunks:  chunks,
		Layers:  stores,
	}

	err := p.Ingest(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, layer.StatusReady, l.Status)
	assert.Equal(t, 2, sp.inserted)
	assert.True(t, sp.tx.committed)
}

func TestIngestFailsOnEmptyDataset(t *testing.T) {
	dir := t.TempDir()
	chunks := chunkstore.New(dir)
	id := uuid.New()
	require.NoError(t, chunks.Create(context.Background(), id))

	sp := &fakeSpatial{}
	reader := &fakeReader{}
	stores := &memStore{rows: map[uuid.UUID]*layer.Layer{}}
	l := &layer.Layer{ID: id, Status: layer.StatusProcessing, UploadType: strPtr("fake")}
	stores.rows[id] = l

	p := &Pipeline{
		Readers: feature.NewRegistry(reader),
		Spatial: sp,
		Chunks:  chunks,
		Layers:  stores,
	}

	err := p.Ingest(context.Background(), l)
	assert.Error(t, err)
	assert.Equal(t, layer.StatusFailed, l.Status)
	assert.Len(t, sp.dropped, 1)
}

func strPtr(s string) *string { return &s }
