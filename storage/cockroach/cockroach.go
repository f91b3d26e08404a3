package cockroach

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/common"
)

type Dialect struct{}

// DriverName is informational: connections come from a pgx pool rather
// than sql.Open.
func (Dialect) DriverName() string { return "pgx" }

func (Dialect) Placeholder(n int) string { return common.DollarPlaceholder(n) }

func (Dialect) QuoteIdent(name string) string { return common.ANSIQuote(name) }

func (Dialect) ColumnType(col schema.ColumnData) string {
	switch col.DataType {
	case schema.TypeInteger:
		return "INT8"
	case schema.TypeBlob:
		return "BYTES"
	default:
		return "STRING"
	}
}

func (d Dialect) CreateTable(tbl *schema.TableSchema) []string {
	return common.StandardDDL(d, tbl)
}

type CockroachDBStorage struct {
	*common.Engine

	mu   sync.Mutex
	pool *pgxpool.Pool
}

func New() storage.Storage {
	return &CockroachDBStorage{
		Engine: common.NewEngine(Dialect{}),
	}
}

// Connect builds a pgx pool and exposes it to the SQL engine through the
// pgx stdlib adapter.
func (s *CockroachDBStorage) Connect(ctx context.Context, connStr string) error {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping cockroachdb: %w", err)
	}

	s.mu.Lock()
	s.pool = pool
	s.mu.Unlock()
	s.SetDB(stdlib.OpenDBFromPool(pool))
	return nil
}

func (s *CockroachDBStorage) ResetConnection(ctx context.Context) error {
	err := s.Engine.ResetConnection(ctx)

	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
	return err
}
