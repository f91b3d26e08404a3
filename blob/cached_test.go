package blob

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string]*Blob
	gets  int
}

func newMemStore() *memStore {
	return &memStore{blobs: map[string]*Blob{}}
}

func (m *memStore) Put(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := NewID()
	m.blobs[id] = &Blob{ID: id, Filename: filename, MimeType: mimeType, Size: int64(len(data)), LastModified: time.Now(), Data: data}
	return id, nil
}

func (m *memStore) Get(ctx context.Context, fileID string) (*Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	return m.blobs[fileID], nil
}

func (m *memStore) Delete(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, fileID)
	return nil
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEqual(t, a, b)
	assert.True(t, ValidID(a))
	assert.False(t, ValidID("../../etc/passwd"))
	assert.False(t, ValidID(""))
}

func TestCachedServesRepeatReads(t *testing.T) {
	ctx := context.Background()
	inner := newMemStore()
	c, err := NewCached(inner, 8, 0)
	require.NoError(t, err)

	id, err := c.Put(ctx, []byte("hello"), "notes.txt", "text/plain")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		b, err := c.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, []byte("hello"), b.Data)
	}
	assert.Equal(t, 1, inner.gets)
	assert.Equal(t, 1, c.Len())
}

func TestCachedDeleteEvicts(t *testing.T) {
	ctx := context.Background()
	inner := newMemStore()
	c, err := NewCached(inner, 8, 0)
	require.NoError(t, err)

	id, err := c.Put(ctx, []byte("hello"), "notes.txt", "text/plain")
	require.NoError(t, err)
	_, err = c.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, id))
	b, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, b)

	// unknown ids are fine
	assert.NoError(t, c.Delete(ctx, NewID()))
}

func TestCachedSkipsLargeBlobs(t *testing.T) {
	ctx := context.Background()
	inner := newMemStore()
	c, err := NewCached(inner, 8, 4)
	require.NoError(t, err)

	id, err := c.Put(ctx, []byte("too large"), "big.bin", "application/octet-stream")
	require.NoError(t, err)
	_, err = c.Get(ctx, id)
	require.NoError(t, err)
	_, err = c.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.gets)
	assert.Equal(t, 0, c.Len())
}

func TestCachedMissNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newMemStore()
	c, err := NewCached(inner, 8, 0)
	require.NoError(t, err)

	b, err := c.Get(ctx, NewID())
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Equal(t, 0, c.Len())
}

func TestNewCachedRejectsBadSize(t *testing.T) {
	_, err := NewCached(newMemStore(), 0, 0)
	assert.Error(t, err)
}

// gatedStore pauses the first Get after the inner read until release is
// closed.
type gatedStore struct {
	*memStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedStore) Get(ctx context.Context, fileID string) (*Blob, error) {
	b, err := g.memStore.Get(ctx, fileID)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return b, err
}

func TestCachedDeleteDuringRead(t *testing.T) {
	ctx := context.Background()
	inner := newMemStore()
	id, err := inner.Put(ctx, []byte("hello"), "a.txt", "text/plain")
	require.NoError(t, err)

	gated := &gatedStore{memStore: inner, read: make(chan struct{}), release: make(chan struct{})}
	c, err := NewCached(gated, 8, 0)
	require.NoError(t, err)

	done := make(chan *Blob, 1)
	go func() {
		b, err := c.Get(ctx, id)
		assert.NoError(t, err)
		done <- b
	}()

	<-gated.read
	require.NoError(t, c.Delete(ctx, id))
	close(gated.release)

	// the read started before the delete and may return the old payload
	require.NotNil(t, <-done)
	assert.Zero(t, c.Len())

	b, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, b, "deleted blob served from cache")
}
