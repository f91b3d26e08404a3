package sqlserver

import (
	"fmt"
	"strings"

	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/common"
	_ "github.com/microsoft/go-mssqldb"
)

type Dialect struct{}

func (Dialect) DriverName() string { return "sqlserver" }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (Dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (Dialect) ColumnType(col schema.ColumnData) string {
	switch col.DataType {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeBlob:
		return "VARBINARY(MAX)"
	}
	if col.IsKeyColumn() {
		return "NVARCHAR(255)"
	}
	return "NVARCHAR(MAX)"
}

// CreateTable runs only when TableExistsQuery reported the table missing,
// so plain CREATE statements are enough.
func (d Dialect) CreateTable(tbl *schema.TableSchema) []string {
	stmts := []string{common.CreateTableSQL(d, "CREATE TABLE", tbl)}
	return append(stmts, common.CreateIndexSQL(d, "CREATE INDEX", tbl)...)
}

func (Dialect) TableExistsQuery(tableName string) (string, []any) {
	return "SELECT COUNT(*) FROM sys.tables WHERE name = @p1", []any{tableName}
}

type SQLServerStorage struct {
	*common.Engine
}

func New() storage.Storage {
	return &SQLServerStorage{
		Engine: common.NewEngine(Dialect{}),
	}
}
