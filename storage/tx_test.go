package storage

import (
	"context"
	"testing"

	"github.com/jadedragon942/ddwiki/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memQuerier struct {
	rows map[string]*object.Object
}

func (m *memQuerier) Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error) {
	_, existed := m.rows[obj.ID]
	m.rows[obj.ID] = obj
	return nil, !existed, nil
}

func (m *memQuerier) Update(ctx context.Context, obj *object.Object) (bool, error) {
	if _, ok := m.rows[obj.ID]; !ok {
		return false, nil
	}
	m.rows[obj.ID] = obj
	return true, nil
}

func (m *memQuerier) FindByID(ctx context.Context, tblName, id string) (*object.Object, error) {
	return m.rows[id], nil
}

func (m *memQuerier) FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error) {
	for _, o := range m.rows {
		if v, _ := o.GetString(key); v == value {
			return o, nil
		}
	}
	return nil, nil
}

func (m *memQuerier) List(ctx context.Context, tblName string) ([]*object.Object, error) {
	out := make([]*object.Object, 0, len(m.rows))
	for _, o := range m.rows {
		out = append(out, o)
	}
	return out, nil
}

func (m *memQuerier) DeleteByID(ctx context.Context, tblName, id string) (bool, error) {
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}

func TestPassthroughTxForwards(t *testing.T) {
	ctx := context.Background()
	m := &memQuerier{rows: map[string]*object.Object{}}
	tx := NewPassthroughTx(m)

	_, created, err := tx.Insert(ctx, object.NewRecord("pages", "1"))
	require.NoError(t, err)
	assert.True(t, created)

	// Writes are visible before commit
	obj, err := m.FindByID(ctx, "pages", "1")
	require.NoError(t, err)
	assert.NotNil(t, obj)

	require.NoError(t, tx.Commit())
}

func TestPassthroughTxDone(t *testing.T) {
	ctx := context.Background()
	tx := NewPassthroughTx(&memQuerier{rows: map[string]*object.Object{}})

	require.NoError(t, tx.Rollback())
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.ErrorIs(t, tx.Rollback(), ErrTxDone)

	_, _, err := tx.Insert(ctx, object.NewRecord("pages", "1"))
	assert.ErrorIs(t, err, ErrTxDone)
	_, err = tx.FindByID(ctx, "pages", "1")
	assert.ErrorIs(t, err, ErrTxDone)
	_, err = tx.List(ctx, "pages")
	assert.ErrorIs(t, err, ErrTxDone)
}

func TestDebugLog(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	DebugLog("SELECT 1 FROM pages WHERE id = ?", "42")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "storage query", entry.Message)
	assert.Equal(t, "SELECT 1 FROM pages WHERE id = ?", entry.ContextMap()["query"])

	SetLogger(nil)
	DebugLog("SELECT 2")
	assert.Equal(t, 1, logs.Len())
}
