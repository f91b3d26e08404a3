package orm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
)

type ORM struct {
	Schema  *schema.Schema
	Storage storage.Storage
}

func New(schema *schema.Schema) *ORM {
	return &ORM{
		Schema: schema,
	}
}

func (orm *ORM) WithStorage(storage storage.Storage) *ORM {
	orm.Storage = storage
	return orm
}

// Open connects the storage and creates the schema's tables.
func (orm *ORM) Open(ctx context.Context, connStr string) error {
	if orm.Storage == nil {
		return errors.New("orm has no storage")
	}
	if err := orm.Storage.Connect(ctx, connStr); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := orm.Storage.CreateTables(ctx, orm.Schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (orm *ORM) Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error) {
	return orm.Storage.Insert(ctx, obj)
}

func (orm *ORM) Update(ctx context.Context, obj *object.Object) (bool, error) {
	return orm.Storage.Update(ctx, obj)
}

func (orm *ORM) FindByID(ctx context.Context, tblName, id string) (*object.Object, error) {
	return orm.Storage.FindByID(ctx, tblName, id)
}

func (orm *ORM) FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error) {
	return orm.Storage.FindByKey(ctx, tblName, key, value)
}

func (orm *ORM) List(ctx context.Context, tblName string) ([]*object.Object, error) {
	return orm.Storage.List(ctx, tblName)
}

func (orm *ORM) DeleteByID(ctx context.Context, tblName, id string) (bool, error) {
	return orm.Storage.DeleteByID(ctx, tblName, id)
}

func (orm *ORM) ResetConnection(ctx context.Context) error {
	return orm.Storage.ResetConnection(ctx)
}

func (orm *ORM) Connect(ctx context.Context, connStr string) error {
	return orm.Storage.Connect(ctx, connStr)
}

func (orm *ORM) Begin(ctx context.Context) (storage.Tx, error) {
	return orm.Storage.Begin(ctx)
}

// RunInTx runs fn inside a transaction, committing when it returns nil and
// rolling back otherwise. A panic in fn rolls back and is re-raised.
func (orm *ORM) RunInTx(ctx context.Context, fn func(tx storage.Tx) error) (err error) {
	tx, err := orm.Storage.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, storage.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
