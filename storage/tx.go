package storage

import (
	"context"
	"sync/atomic"

	"github.com/jadedragon942/ddwiki/object"
)

// passthroughTx applies every statement immediately against the parent
// storage. It serves engines whose atomic unit is a single record (one CQL
// row, one S3 object): each write is already all-or-nothing, so Rollback can
// only stop further use of the handle.
type passthroughTx struct {
	s    Querier
	done atomic.Bool
}

// NewPassthroughTx returns a Tx that forwards to s without buffering.
func NewPassthroughTx(s Querier) Tx {
	return &passthroughTx{s: s}
}

func (t *passthroughTx) Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error) {
	if t.done.Load() {
		return nil, false, ErrTxDone
	}
	return t.s.Insert(ctx, obj)
}

func (t *passthroughTx) Update(ctx context.Context, obj *object.Object) (bool, error) {
	if t.done.Load() {
		return false, ErrTxDone
	}
	return t.s.Update(ctx, obj)
}

func (t *passthroughTx) FindByID(ctx context.Context, tblName, id string) (*object.Object, error) {
	if t.done.Load() {
		return nil, ErrTxDone
	}
	return t.s.FindByID(ctx, tblName, id)
}

func (t *passthroughTx) FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error) {
	if t.done.Load() {
		return nil, ErrTxDone
	}
	return t.s.FindByKey(ctx, tblName, key, value)
}

func (t *passthroughTx) List(ctx context.Context, tblName string) ([]*object.Object, error) {
	if t.done.Load() {
		return nil, ErrTxDone
	}
	return t.s.List(ctx, tblName)
}

func (t *passthroughTx) DeleteByID(ctx context.Context, tblName, id string) (bool, error) {
	if t.done.Load() {
		return false, ErrTxDone
	}
	return t.s.DeleteByID(ctx, tblName, id)
}

func (t *passthroughTx) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}
	return nil
}

func (t *passthroughTx) Rollback() error {
	if !t.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}
	return nil
}
