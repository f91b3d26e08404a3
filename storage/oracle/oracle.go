package oracle

import (
	"fmt"
	"strings"

	_ "github.com/godror/godror"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/common"
)

type Dialect struct{}

func (Dialect) DriverName() string { return "godror" }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf(":%d", n) }

// QuoteIdent upper-cases names so quoted identifiers match what Oracle
// stores for unquoted ones.
func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ToUpper(strings.ReplaceAll(name, `"`, "")) + `"`
}

func (Dialect) ColumnType(col schema.ColumnData) string {
	switch col.DataType {
	case schema.TypeInteger:
		return "NUMBER(19)"
	case schema.TypeBlob:
		return "BLOB"
	}
	// CLOB columns cannot be compared or indexed
	if col.IsKeyColumn() {
		return "VARCHAR2(255)"
	}
	return "CLOB"
}

func (d Dialect) CreateTable(tbl *schema.TableSchema) []string {
	stmts := []string{common.CreateTableSQL(d, "CREATE TABLE", tbl)}
	return append(stmts, common.CreateIndexSQL(d, "CREATE INDEX", tbl)...)
}

func (Dialect) TableExistsQuery(tableName string) (string, []any) {
	return "SELECT COUNT(*) FROM user_tables WHERE table_name = :1", []any{strings.ToUpper(tableName)}
}

type OracleStorage struct {
	*common.Engine
}

func New() storage.Storage {
	return &OracleStorage{
		Engine: common.NewEngine(Dialect{}),
	}
}

