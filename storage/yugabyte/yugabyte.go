package yugabyte

import (
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/common"
	"github.com/jadedragon942/ddwiki/storage/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect is the PostgreSQL dialect served through pgx's database/sql
// driver, which YugabyteDB's YSQL API accepts unchanged.
type Dialect struct {
	postgres.Dialect
}

func (Dialect) DriverName() string { return "pgx" }

func (d Dialect) CreateTable(tbl *schema.TableSchema) []string {
	return common.StandardDDL(d, tbl)
}

type YugabyteDBStorage struct {
	*common.Engine
}

func New() storage.Storage {
	return &YugabyteDBStorage{
		Engine: common.NewEngine(Dialect{}),
	}
}
