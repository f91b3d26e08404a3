package common

import (
	"fmt"
	"strings"

	"github.com/jadedragon942/ddwiki/schema"
)

// Dialect captures what differs between the SQL engines: driver name,
// placeholder syntax, identifier quoting and DDL.
type Dialect interface {
	DriverName() string
	// Placeholder returns the bind marker for the n-th argument, counting from 1.
	Placeholder(n int) string
	QuoteIdent(name string) string
	ColumnType(col schema.ColumnData) string
	// CreateTable returns the statements that create tbl and its indexes.
	// They must be safe to run against an existing table.
	CreateTable(tbl *schema.TableSchema) []string
}

// TableChecker is implemented by dialects that cannot express "create if
// absent" in DDL. The query takes the table name as its only argument and
// returns a count.
type TableChecker interface {
	TableExistsQuery(tableName string) (string, []any)
}

func QuestionPlaceholder(int) string { return "?" }

func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// ColumnDefs renders "name type [NOT NULL] [UNIQUE]" for every column with
// the id column first as primary key.
func ColumnDefs(d Dialect, tbl *schema.TableSchema) []string {
	defs := []string{fmt.Sprintf("%s %s PRIMARY KEY", d.QuoteIdent("id"), d.ColumnType(schema.ColumnData{Name: "id", DataType: schema.TypeText, PrimaryKey: true}))}
	for _, col := range tbl.Columns() {
		if col.Name == "id" {
			continue
		}
		def := fmt.Sprintf("%s %s", d.QuoteIdent(col.Name), d.ColumnType(col))
		if !col.Nullable {
			def += " NOT NULL"
		}
		if col.Unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	return defs
}

// CreateTableSQL joins ColumnDefs into a CREATE TABLE statement. prefix is
// the leading keyword sequence, "CREATE TABLE IF NOT EXISTS" on engines
// that support it.
func CreateTableSQL(d Dialect, prefix string, tbl *schema.TableSchema) string {
	return fmt.Sprintf("%s %s (%s)", prefix, d.QuoteIdent(tbl.TableName), strings.Join(ColumnDefs(d, tbl), ", "))
}

// IndexName is the name given to the secondary index on tbl.col.
func IndexName(table, col string) string {
	return fmt.Sprintf("idx_%s_%s", table, col)
}

// CreateIndexSQL returns one statement per non-unique indexed column.
func CreateIndexSQL(d Dialect, prefix string, tbl *schema.TableSchema) []string {
	var stmts []string
	for _, col := range tbl.Columns() {
		if !col.Index || col.Unique || col.PrimaryKey {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("%s %s ON %s (%s)",
			prefix, d.QuoteIdent(IndexName(tbl.TableName, col.Name)), d.QuoteIdent(tbl.TableName), d.QuoteIdent(col.Name)))
	}
	return stmts
}

// StandardDDL covers every engine that accepts IF NOT EXISTS on both tables
// and indexes.
func StandardDDL(d Dialect, tbl *schema.TableSchema) []string {
	stmts := []string{CreateTableSQL(d, "CREATE TABLE IF NOT EXISTS", tbl)}
	return append(stmts, CreateIndexSQL(d, "CREATE INDEX IF NOT EXISTS", tbl)...)
}

// ANSIQuote wraps name in double quotes.
func ANSIQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
