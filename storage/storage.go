package storage

import (
	"context"
	"errors"

	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNoSchema     = errors.New("schema not initialized")
	ErrTxDone       = errors.New("transaction already committed or rolled back")
)

// Querier holds the record operations shared by a Storage and a Tx.
//
// Insert writes the whole record, replacing any row with the same id, and
// reports whether a new row was created. FindByID and FindByKey return
// (nil, nil) when nothing matches.
type Querier interface {
	Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error)
	Update(ctx context.Context, obj *object.Object) (bool, error)
	FindByID(ctx context.Context, tblName, id string) (*object.Object, error)
	FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error)
	List(ctx context.Context, tblName string) ([]*object.Object, error)
	DeleteByID(ctx context.Context, tblName, id string) (bool, error)
}

type Storage interface {
	Querier
	Connect(ctx context.Context, connStr string) error
	CreateTables(ctx context.Context, schema *schema.Schema) error
	Begin(ctx context.Context) (Tx, error)
	ResetConnection(ctx context.Context) error
}

type Tx interface {
	Querier
	Commit() error
	Rollback() error
}
