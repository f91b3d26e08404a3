package sqlite

import (
	"context"
	"testing"

	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storagetest"
	"github.com/stretchr/testify/assert"
)

func TestSQLiteStorage(t *testing.T) {
	storagetest.Run(t, New, ":memory:", true)
}

func TestSQLiteCreateTablesTwice(t *testing.T) {
	storage := New()
	ctx := context.Background()
	if err := storage.Connect(ctx, ":memory:"); err != nil {
		t.Fatalf("Failed to connect to SQLite storage: %v", err)
	}
	defer storage.ResetConnection(ctx)

	sch := schema.GetTestSchema()
	if err := storage.CreateTables(ctx, sch); err != nil {
		t.Fatalf("first CreateTables: %v", err)
	}
	if err := storage.CreateTables(ctx, sch); err != nil {
		t.Fatalf("second CreateTables: %v", err)
	}
}

func TestSQLiteDDL(t *testing.T) {
	stmts := Dialect{}.CreateTable(schema.GetTestSchema().Tables["notes"])
	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "notes" ("id" TEXT PRIMARY KEY, "title" TEXT NOT NULL, "metadata" TEXT, "revision" INTEGER, "attachment" BLOB)`,
		`CREATE INDEX IF NOT EXISTS "idx_notes_title" ON "notes" ("title")`,
	}, stmts)
}
