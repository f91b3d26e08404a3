package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/common"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect struct{}

func (Dialect) DriverName() string { return "sqlite3" }

func (Dialect) Placeholder(n int) string { return common.QuestionPlaceholder(n) }

func (Dialect) QuoteIdent(name string) string { return common.ANSIQuote(name) }

func (Dialect) ColumnType(col schema.ColumnData) string {
	switch col.DataType {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (d Dialect) CreateTable(tbl *schema.TableSchema) []string {
	return common.StandardDDL(d, tbl)
}

type SQLiteStorage struct {
	*common.Engine
}

func New() storage.Storage {
	return &SQLiteStorage{
		Engine: common.NewEngine(Dialect{}),
	}
}

// Connect opens connStr with the sqlite3 driver. The pool is limited to one
// connection: every connection to ":memory:" is a separate database, and a
// file database only admits one writer anyway.
func (s *SQLiteStorage) Connect(ctx context.Context, connStr string) error {
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s.SetDB(db)
	return nil
}
