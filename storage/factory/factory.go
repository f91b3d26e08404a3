// Package factory maps engine names to storage backends.
package factory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jadedragon942/ddwiki/storage"
	"github.com/jadedragon942/ddwiki/storage/cockroach"
	"github.com/jadedragon942/ddwiki/storage/oracle"
	"github.com/jadedragon942/ddwiki/storage/postgres"
	"github.com/jadedragon942/ddwiki/storage/s3"
	"github.com/jadedragon942/ddwiki/storage/scylla"
	"github.com/jadedragon942/ddwiki/storage/sqlite"
	"github.com/jadedragon942/ddwiki/storage/sqlserver"
	"github.com/jadedragon942/ddwiki/storage/tidb"
	"github.com/jadedragon942/ddwiki/storage/yugabyte"
)

var constructors = map[string]func() storage.Storage{
	"sqlite":    sqlite.New,
	"postgres":  postgres.New,
	"cockroach": cockroach.New,
	"yugabyte":  yugabyte.New,
	"tidb":      tidb.New,
	"mysql":     tidb.New,
	"sqlserver": sqlserver.New,
	"oracle":    oracle.New,
	"scylla":    scylla.New,
	"s3":        s3.New,
}

// New returns an unconnected backend for engine.
func New(engine string) (storage.Storage, error) {
	ctor, ok := constructors[strings.ToLower(engine)]
	if !ok {
		return nil, fmt.Errorf("unknown storage engine %q (known: %s)", engine, strings.Join(Engines(), ", "))
	}
	return ctor(), nil
}

// Engines lists the accepted engine names.
func Engines() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
