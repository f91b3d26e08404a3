package tidb

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/common"
)

// Dialect speaks the MySQL protocol that TiDB implements.
type Dialect struct{}

func (Dialect) DriverName() string { return "mysql" }

func (Dialect) Placeholder(n int) string { return common.QuestionPlaceholder(n) }

func (Dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (Dialect) ColumnType(col schema.ColumnData) string {
	switch col.DataType {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeBlob:
		return "LONGBLOB"
	}
	// TEXT columns cannot carry a key without a prefix length
	if col.IsKeyColumn() {
		return "VARCHAR(255)"
	}
	return "LONGTEXT"
}

func (d Dialect) CreateTable(tbl *schema.TableSchema) []string {
	return common.StandardDDL(d, tbl)
}

type TiDBStorage struct {
	*common.Engine
}

func New() storage.Storage {
	return &TiDBStorage{
		Engine: common.NewEngine(Dialect{}),
	}
}
