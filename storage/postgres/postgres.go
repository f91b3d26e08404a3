package postgres

import (
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/common"
	_ "github.com/lib/pq"
)

type Dialect struct{}

func (Dialect) DriverName() string { return "postgres" }

func (Dialect) Placeholder(n int) string { return common.DollarPlaceholder(n) }

func (Dialect) QuoteIdent(name string) string { return common.ANSIQuote(name) }

func (Dialect) ColumnType(col schema.ColumnData) string {
	return ColumnType(col)
}

func (d Dialect) CreateTable(tbl *schema.TableSchema) []string {
	return common.StandardDDL(d, tbl)
}

// ColumnType maps logical types onto PostgreSQL types. YugabyteDB speaks
// the same dialect and reuses it.
func ColumnType(col schema.ColumnData) string {
	switch col.DataType {
	case schema.TypeInteger:
		return "BIGINT"
	case schema.TypeBlob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

type PostgreSQLStorage struct {
	*common.Engine
}

func New() storage.Storage {
	return &PostgreSQLStorage{
		Engine: common.NewEngine(Dialect{}),
	}
}
