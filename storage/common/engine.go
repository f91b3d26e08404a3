package common

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Engine implements storage.Storage for any database/sql driver. Backends
// embed it and supply a Dialect.
type Engine struct {
	Dialect Dialect

	mu  sync.RWMutex
	db  *sql.DB
	sch *schema.Schema
}

func NewEngine(d Dialect) *Engine {
	return &Engine{Dialect: d}
}

// Connect opens the dialect's driver and verifies the connection.
func (e *Engine) Connect(ctx context.Context, connStr string) error {
	db, err := sql.Open(e.Dialect.DriverName(), connStr)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping %s: %w", e.Dialect.DriverName(), err)
	}
	e.SetDB(db)
	return nil
}

func (e *Engine) SetDB(db *sql.DB) {
	e.mu.Lock()
	e.db = db
	e.mu.Unlock()
}

func (e *Engine) DB() *sql.DB {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.db
}

func (e *Engine) Schema() *schema.Schema {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sch
}

func (e *Engine) ResetConnection(ctx context.Context) error {
	e.mu.Lock()
	db := e.db
	e.db = nil
	e.mu.Unlock()
	if db != nil {
		return db.Close()
	}
	return nil
}

func (e *Engine) CreateTables(ctx context.Context, sch *schema.Schema) error {
	db := e.DB()
	if db == nil {
		return storage.ErrNotConnected
	}
	if sch == nil {
		return storage.ErrNoSchema
	}

	for _, name := range sch.TableNames() {
		tbl, _ := sch.GetTable(name)
		if !tbl.HasField("id") {
			return fmt.Errorf("table %s has no id column", name)
		}

		if checker, ok := e.Dialect.(TableChecker); ok {
			query, args := checker.TableExistsQuery(name)
			var count int
			if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
				return fmt.Errorf("failed to check if table %s exists: %w", name, err)
			}
			if count > 0 {
				continue
			}
		}

		for _, stmt := range e.Dialect.CreateTable(tbl) {
			storage.DebugLog(stmt)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to create table %s: %w", name, err)
			}
		}
	}

	e.mu.Lock()
	e.sch = sch
	e.mu.Unlock()
	return nil
}

func (e *Engine) executor() (*executor, error) {
	db := e.DB()
	if db == nil {
		return nil, storage.ErrNotConnected
	}
	sch := e.Schema()
	if sch == nil {
		return nil, storage.ErrNoSchema
	}
	return &executor{d: e.Dialect, q: db, sch: sch}, nil
}

func (e *Engine) Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error) {
	x, err := e.executor()
	if err != nil {
		return nil, false, err
	}
	return x.Insert(ctx, obj)
}

func (e *Engine) Update(ctx context.Context, obj *object.Object) (bool, error) {
	x, err := e.executor()
	if err != nil {
		return false, err
	}
	return x.Update(ctx, obj)
}

func (e *Engine) FindByID(ctx context.Context, tblName, id string) (*object.Object, error) {
	x, err := e.executor()
	if err != nil {
		return nil, err
	}
	return x.FindByKey(ctx, tblName, "id", id)
}

func (e *Engine) FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error) {
	x, err := e.executor()
	if err != nil {
		return nil, err
	}
	return x.FindByKey(ctx, tblName, key, value)
}

func (e *Engine) List(ctx context.Context, tblName string) ([]*object.Object, error) {
	x, err := e.executor()
	if err != nil {
		return nil, err
	}
	return x.List(ctx, tblName)
}

func (e *Engine) DeleteByID(ctx context.Context, tblName, id string) (bool, error) {
	x, err := e.executor()
	if err != nil {
		return false, err
	}
	return x.DeleteByID(ctx, tblName, id)
}

func (e *Engine) Begin(ctx context.Context) (storage.Tx, error) {
	db := e.DB()
	if db == nil {
		return nil, storage.ErrNotConnected
	}
	sch := e.Schema()
	if sch == nil {
		return nil, storage.ErrNoSchema
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTx{executor: &executor{d: e.Dialect, q: tx, sch: sch}, tx: tx}, nil
}

type sqlTx struct {
	*executor
	tx *sql.Tx
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return storage.ErrTxDone
		}
		return err
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return storage.ErrTxDone
		}
		return err
	}
	return nil
}

// executor runs the record statements against a connection pool or an open
// transaction.
type executor struct {
	d   Dialect
	q   querier
	sch *schema.Schema
}

func (x *executor) table(name string) (*schema.TableSchema, error) {
	tbl, ok := x.sch.GetTable(name)
	if !ok {
		return nil, fmt.Errorf("table %s not found in schema", name)
	}
	return tbl, nil
}

// bindValue converts a field value into something every driver accepts.
func bindValue(col schema.ColumnData, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.DataType {
	case schema.TypeJSON:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON field %s: %w", col.Name, err)
		}
		return string(data), nil
	case schema.TypeDateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
	case schema.TypeBlob:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
	}
	return v, nil
}

// columnsAndValues returns the schema columns present on obj, id excluded,
// in declaration order.
func (x *executor) columnsAndValues(tbl *schema.TableSchema, obj *object.Object) ([]string, []any, error) {
	for name := range obj.Fields {
		if !tbl.HasField(name) {
			return nil, nil, fmt.Errorf("field %s not found in table %s schema", name, tbl.TableName)
		}
	}
	var cols []string
	var vals []any
	for _, col := range tbl.Columns() {
		if col.Name == "id" {
			continue
		}
		raw, ok := obj.Fields[col.Name]
		if !ok {
			continue
		}
		v, err := bindValue(col, raw)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, col.Name)
		vals = append(vals, v)
	}
	return cols, vals, nil
}

func (x *executor) exists(ctx context.Context, tbl *schema.TableSchema, id string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
		x.d.QuoteIdent(tbl.TableName), x.d.QuoteIdent("id"), x.d.Placeholder(1))
	storage.DebugLog(query, id)
	var n int64
	if err := x.q.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Insert writes obj, replacing an existing row with the same id. The
// returned flag is true when a new row was created.
func (x *executor) Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error) {
	if obj == nil || obj.ID == "" {
		return nil, false, errors.New("object and object id must not be empty")
	}
	tbl, err := x.table(obj.TableName)
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, false, err
	}

	found, err := x.exists(ctx, tbl, obj.ID)
	if err != nil {
		return nil, false, err
	}
	if found {
		if _, err := x.update(ctx, tbl, obj); err != nil {
			return nil, false, err
		}
		return data, false, nil
	}

	cols, vals, err := x.columnsAndValues(tbl, obj)
	if err != nil {
		return nil, false, err
	}
	quoted := []string{x.d.QuoteIdent("id")}
	placeholders := []string{x.d.Placeholder(1)}
	for i, c := range cols {
		quoted = append(quoted, x.d.QuoteIdent(c))
		placeholders = append(placeholders, x.d.Placeholder(i+2))
	}
	args := append([]any{obj.ID}, vals...)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		x.d.QuoteIdent(tbl.TableName), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	storage.DebugLog(query, args...)
	if _, err := x.q.ExecContext(ctx, query, args...); err != nil {
		return nil, false, fmt.Errorf("failed to insert into %s: %w", tbl.TableName, err)
	}
	return data, true, nil
}

func (x *executor) Update(ctx context.Context, obj *object.Object) (bool, error) {
	if obj == nil || obj.ID == "" {
		return false, errors.New("object and object id must not be empty")
	}
	tbl, err := x.table(obj.TableName)
	if err != nil {
		return false, err
	}
	return x.update(ctx, tbl, obj)
}

func (x *executor) update(ctx context.Context, tbl *schema.TableSchema, obj *object.Object) (bool, error) {
	cols, vals, err := x.columnsAndValues(tbl, obj)
	if err != nil {
		return false, err
	}
	if len(cols) == 0 {
		return x.exists(ctx, tbl, obj.ID)
	}

	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", x.d.QuoteIdent(c), x.d.Placeholder(i+1)))
	}
	args := append(vals, obj.ID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		x.d.QuoteIdent(tbl.TableName), strings.Join(sets, ", "), x.d.QuoteIdent("id"), x.d.Placeholder(len(args)))
	storage.DebugLog(query, args...)

	res, err := x.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", tbl.TableName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// mysql reports zero affected rows when the values did not change
		return x.exists(ctx, tbl, obj.ID)
	}
	return true, nil
}

func (x *executor) selectColumns(fs *FieldScanner) string {
	quoted := make([]string, 0, len(fs.Columns))
	for _, name := range fs.ColumnNames() {
		quoted = append(quoted, x.d.QuoteIdent(name))
	}
	return strings.Join(quoted, ", ")
}

func (x *executor) FindByID(ctx context.Context, tblName, id string) (*object.Object, error) {
	return x.FindByKey(ctx, tblName, "id", id)
}

func (x *executor) FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error) {
	if tblName == "" || key == "" || value == "" {
		return nil, errors.New("table name, key, and value must not be empty")
	}
	tbl, err := x.table(tblName)
	if err != nil {
		return nil, err
	}
	if !tbl.HasField(key) {
		return nil, fmt.Errorf("field %s not found in table %s schema", key, tblName)
	}

	fs := NewFieldScanner(tbl)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		x.selectColumns(fs), x.d.QuoteIdent(tbl.TableName), x.d.QuoteIdent(key), x.d.Placeholder(1))
	storage.DebugLog(query, value)

	row := x.q.QueryRowContext(ctx, query, value)
	if err := row.Scan(fs.ColumnPointers...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return fs.ScanToObject(tbl.TableName), nil
}

func (x *executor) List(ctx context.Context, tblName string) ([]*object.Object, error) {
	tbl, err := x.table(tblName)
	if err != nil {
		return nil, err
	}

	fs := NewFieldScanner(tbl)
	query := fmt.Sprintf("SELECT %s FROM %s", x.selectColumns(fs), x.d.QuoteIdent(tbl.TableName))
	storage.DebugLog(query)

	rows, err := x.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*object.Object
	for rows.Next() {
		if err := rows.Scan(fs.ColumnPointers...); err != nil {
			return nil, err
		}
		out = append(out, fs.ScanToObject(tbl.TableName))
	}
	return out, rows.Err()
}

func (x *executor) DeleteByID(ctx context.Context, tblName, id string) (bool, error) {
	tbl, err := x.table(tblName)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		x.d.QuoteIdent(tbl.TableName), x.d.QuoteIdent("id"), x.d.Placeholder(1))
	storage.DebugLog(query, id)

	res, err := x.q.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
