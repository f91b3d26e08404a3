package common

import (
	"database/sql"

	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
)

// FieldScanner holds one scan destination per column of a table and turns a
// scanned row back into an object.Object.
type FieldScanner struct {
	ColumnPointers []any
	Columns        []schema.ColumnData
}

// NewFieldScanner creates a new field scanner for the given table schema.
// Every column is scanned through a nullable type so that NULLs read back
// as absent values instead of failing the scan.
func NewFieldScanner(tbl *schema.TableSchema) *FieldScanner {
	cols := tbl.Columns()
	pointers := make([]any, 0, len(cols))
	for _, col := range cols {
		switch col.DataType {
		case schema.TypeInteger:
			pointers = append(pointers, new(sql.NullInt64))
		case schema.TypeBlob:
			pointers = append(pointers, new([]byte))
		default:
			pointers = append(pointers, new(sql.NullString))
		}
	}
	return &FieldScanner{ColumnPointers: pointers, Columns: cols}
}

// ColumnNames returns the column names in scan order.
func (fs *FieldScanner) ColumnNames() []string {
	names := make([]string, 0, len(fs.Columns))
	for _, col := range fs.Columns {
		names = append(names, col.Name)
	}
	return names
}

// ScanToObject converts the most recently scanned values to an object.
// NULL columns are stored as nil.
func (fs *FieldScanner) ScanToObject(tableName string) *object.Object {
	obj := object.NewRecord(tableName, "")
	for i, col := range fs.Columns {
		switch p := fs.ColumnPointers[i].(type) {
		case *sql.NullInt64:
			if p.Valid {
				obj.Fields[col.Name] = p.Int64
			} else {
				obj.Fields[col.Name] = nil
			}
		case *sql.NullString:
			if p.Valid {
				obj.Fields[col.Name] = p.String
			} else {
				obj.Fields[col.Name] = nil
			}
		case *[]byte:
			if *p != nil {
				// drivers may reuse the buffer between rows
				obj.Fields[col.Name] = append([]byte(nil), *p...)
			} else {
				obj.Fields[col.Name] = nil
			}
		}
	}
	if id, ok := obj.GetString("id"); ok {
		obj.ID = id
	}
	return obj
}
