package postgres

import (
	"testing"

	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storagetest"
	"github.com/stretchr/testify/assert"
)

func TestPostgreSQLStorage(t *testing.T) {
	storagetest.RunFromEnv(t, "POSTGRES_TEST_URL", New, true)
}

func TestPostgreSQLDDL(t *testing.T) {
	d := Dialect{}
	stmts := d.CreateTable(schema.GetTestSchema().Tables["notes"])
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "notes" ("id" TEXT PRIMARY KEY, "title" TEXT NOT NULL, "metadata" TEXT, "revision" BIGINT, "attachment" BYTEA)`, stmts[0])
	assert.Equal(t, "$3", d.Placeholder(3))
}
