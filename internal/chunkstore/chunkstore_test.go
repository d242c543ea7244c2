package chunkstore

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAppendAccumulatesOffset(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Create(ctx, id))

	n, err := store.Append(ctx, id, bytes.NewReader([]byte("hello ")))
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)

	n, err = store.Append(ctx, id, bytes.NewReader([]byte("world")))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	size, err := store.Size(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)

	f, err := store.Open(ctx, id)
	require.NoError(t, err)
	defer f.Close()
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStoreReconcileTruncatesPastOffset(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Create(ctx, id))
	_, err := store.Append(ctx, id, bytes.NewReader([]byte("0123456789")))
	require.NoError(t, err)

	require.NoError(t, store.Reconcile(ctx, id, 5))

	size, err := store.Size(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
}

func TestStoreRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.Remove(ctx, id))

	require.NoError(t, store.Create(ctx, id))
	require.NoError(t, store.Remove(ctx, id))
	require.NoError(t, store.Remove(ctx, id))
}

func TestLockerSerializesAccess(t *testing.T) {
	locker := NewLocker()
	id := uuid.New()
	ctx := context.Background()

	require.NoError(t, locker.Lock(ctx, id))

	unlocked := make(chan struct{})
	go func() {
		require.NoError(t, locker.Lock(ctx, id))
		close(unlocked)
		locker.Unlock(id)
	}()

	select {
	case <-unlocked:
		t.Fatal("second Lock returned before first Unlock")
	default:
	}

	locker.Unlock(id)
	<-unlocked
}

func TestLockerLockTimesOutOnCancelledContext(t *testing.T) {
	locker := NewLocker()
	id := uuid.New()

	require.NoError(t, locker.Lock(context.Background(), id))
	defer locker.Unlock(id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := locker.Lock(ctx, id)
	assert.ErrorIs(t, err, ErrLockTimeout)
}
