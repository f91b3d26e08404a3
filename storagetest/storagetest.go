package storagetest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
)

// Run runs every suite against a fresh connection to connStr made by
// newStorage.
func Run(t *testing.T, newStorage func() storage.Storage, connStr string, rollbackDiscards bool) {
	connect := func(t *testing.T) storage.Storage {
		t.Helper()
		ctx := context.Background()
		s := newStorage()
		if err := s.Connect(ctx, connStr); err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		t.Cleanup(func() { s.ResetConnection(ctx) })
		return s
	}

	t.Run("Basic", func(t *testing.T) { StorageTest(t, connect(t)) })
	t.Run("CRUD", func(t *testing.T) { CRUDTest(t, connect(t)) })
	t.Run("Tx", func(t *testing.T) { TxTest(t, connect(t), rollbackDiscards) })
}

// RunFromEnv is Run with the connection string taken from envVar. The test
// is skipped when the variable is unset.
func RunFromEnv(t *testing.T, envVar string, newStorage func() storage.Storage, rollbackDiscards bool) {
	connStr := os.Getenv(envVar)
	if connStr == "" {
		t.Skipf("%s not set, skipping", envVar)
	}
	Run(t, newStorage, connStr, rollbackDiscards)
}

// StorageTest is a simple sanity check for a storage.Storage backend
// This code liberally borrowed and modified from github.com/dgryski/go-shardedkv
func StorageTest(t *testing.T, storage storage.Storage) {
	ctx := context.Background()

	err := storage.CreateTables(ctx, schema.GetTestSchema())
	if err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	v, err := storage.FindByID(ctx, "notes", "hello")
	if err != nil {
		t.Errorf("getting a non-existent key was 'ok': v=%v err=%v\n", v, err)
	}

	o := object.New()
	o.TableName = "notes"
	o.ID = "hello"
	o.Fields = map[string]any{
		"title":     "Hello World",
		"metadata": "{\"test\":\"wowza\"}",
	}

	_, _, err = storage.Insert(ctx, o)
	if err != nil {
		t.Fatalf("failed inserting a valid key: err=%v\n", err)
	}

	v, err = storage.FindByID(ctx, "notes", "hello")
	if err != nil {
		t.Errorf("failed getting a valid key: v=%v err=%v\n", v, err)
	}
	if v == nil {
		t.Fatalf("got nil object for key 'hello'")
	}

	name, _ := v.GetString("title")

	t.Logf("got object: v.ID=%v v.Fields=%+v\n", v.ID, v.Fields)

	if v.ID != "hello" {
		t.Fatalf("got wrong object: v.ID=%v v.Fields=%v\n", v.ID, v.Fields)
	}
	if name != "Hello World" {
		t.Fatalf("got wrong name field: name=%v\n", name)
	}

	var ok bool
	ok, err = storage.DeleteByID(ctx, "notes", "hello")
	if ok != true || err != nil {
		t.Fatalf("failed deleting key: ok=%v err=%v\n", ok, err)
	}

	v, err = storage.FindByID(ctx, "notes", "hello")
	if v != nil || err != nil {
		t.Fatalf("getting a non-existent key post-delete was 'ok': v=%v err=%v\n", v, err)
	}

	err = storage.ResetConnection(ctx)
	if err != nil {
		t.Fatalf("failed resetting connection for key: err=%v\n", err)
	}
}

// CRUDTest performs comprehensive CRUD testing for a storage.Storage backend
func CRUDTest(t *testing.T, storage storage.Storage) {
	ctx := context.Background()

	// Create tables
	err := storage.CreateTables(ctx, schema.GetTestSchema())
	if err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	// Leftovers from an earlier run against a persistent server
	for _, id := range []string{"note1", "note2", "note3", "note4"} {
		if _, err := storage.DeleteByID(ctx, "notes", id); err != nil {
			t.Fatalf("failed to clean up %s: %v", id, err)
		}
	}

	// Test CREATE operations
	testObjects := []*object.Object{
		{
			TableName: "notes",
			ID:        "note1",
			Fields: map[string]any{
				"title":     "Getting Started",
				"metadata": `{"tags": ["intro"], "lang": "en"}`,
			},
		},
		{
			TableName: "notes",
			ID:        "note2",
			Fields: map[string]any{
				"title":     "Release Notes",
				"metadata": `{"tags": ["release"], "lang": "en"}`,
			},
		},
		{
			TableName: "notes",
			ID:        "note3",
			Fields: map[string]any{
				"title":     "Style Guide",
				"metadata": `{"tags": ["style"], "lang": "de"}`,
			},
		},
	}

	for _, obj := range testObjects {
		_, created, err := storage.Insert(ctx, obj)
		if err != nil {
			t.Errorf("failed to insert object %s: %v", obj.ID, err)
		}
		if !created {
			t.Errorf("object %s was not created", obj.ID)
		}
	}

	// Test READ operations
	// Test FindByID
	obj, err := storage.FindByID(ctx, "notes", "note1")
	if err != nil {
		t.Errorf("failed to find object by ID: %v", err)
	}
	if obj == nil {
		t.Fatal("object not found")
	}
	if obj.ID != "note1" {
		t.Errorf("expected ID 'note1', got '%s'", obj.ID)
	}

	name, ok := obj.GetString("title")
	if !ok {
		t.Error("failed to get name field")
	}
	if name != "Getting Started" {
		t.Errorf("expected name 'Getting Started', got '%s'", name)
	}

	// Test FindByKey
	obj2, err := storage.FindByKey(ctx, "notes", "title", "Release Notes")
	if err != nil {
		t.Errorf("failed to find object by key: %v", err)
	}
	if obj2 == nil {
		t.Error("object not found by name key")
	} else if obj2.ID != "note2" {
		t.Errorf("expected ID 'note2', got '%s'", obj2.ID)
	}

	// Test non-existent object
	nonExistent, err := storage.FindByID(ctx, "notes", "nonexistent")
	if err != nil {
		t.Errorf("unexpected error when finding non-existent object: %v", err)
	}
	if nonExistent != nil {
		t.Error("expected nil for non-existent object")
	}

	// Test UPDATE operations
	// Update an existing object
	updateObj := &object.Object{
		TableName: "notes",
		ID:        "note1",
		Fields: map[string]any{
			"title":     "Getting Started, revised",
			"metadata": `{"tags": ["intro", "draft"], "lang": "en"}`,
		},
	}

	updated, err := storage.Update(ctx, updateObj)
	if err != nil {
		t.Errorf("failed to update object: %v", err)
	}
	if !updated {
		t.Error("object was not updated")
	}

	// Verify the update
	obj, err = storage.FindByID(ctx, "notes", "note1")
	if err != nil {
		t.Errorf("failed to find updated object: %v", err)
	}
	if obj == nil {
		t.Fatal("updated object not found")
	}

	name, ok = obj.GetString("title")
	if !ok {
		t.Error("failed to get updated name field")
	}
	if name != "Getting Started, revised" {
		t.Errorf("expected updated name 'Getting Started, revised', got '%s'", name)
	}

	// Test updating non-existent object
	nonExistentObj := &object.Object{
		TableName: "notes",
		ID:        "nonexistent",
		Fields: map[string]any{
			"title":     "Ghost Note",
			"metadata": `{}`,
		},
	}

	updated, err = storage.Update(ctx, nonExistentObj)
	if err != nil {
		t.Errorf("unexpected error when updating non-existent object: %v", err)
	}
	if updated {
		t.Error("expected false when updating non-existent object")
	}

	// Test DELETE operations
	// Delete an existing object
	deleted, err := storage.DeleteByID(ctx, "notes", "note2")
	if err != nil {
		t.Errorf("failed to delete object: %v", err)
	}
	if !deleted {
		t.Error("object was not deleted")
	}

	// Verify deletion
	obj, err = storage.FindByID(ctx, "notes", "note2")
	if err != nil {
		t.Errorf("unexpected error when finding deleted object: %v", err)
	}
	if obj != nil {
		t.Error("deleted object still exists")
	}

	// Test deleting non-existent object
	deleted, err = storage.DeleteByID(ctx, "notes", "nonexistent")
	if err != nil {
		t.Errorf("unexpected error when deleting non-existent object: %v", err)
	}
	if deleted {
		t.Error("expected false when deleting non-existent object")
	}

	// Test UPSERT behavior (Insert or Replace)
	// Insert a new object
	newObj := &object.Object{
		TableName: "notes",
		ID:        "note4",
		Fields: map[string]any{
			"title":     "Roadmap",
			"metadata": `{"tags": ["plan"], "lang": "en"}`,
		},
	}

	_, created, err := storage.Insert(ctx, newObj)
	if err != nil {
		t.Errorf("failed to insert new object: %v", err)
	}
	if !created {
		t.Error("new object was not created")
	}

	// Update the same object via Insert (upsert)
	upsertObj := &object.Object{
		TableName: "notes",
		ID:        "note4",
		Fields: map[string]any{
			"title":     "Roadmap 2027",
			"metadata": `{"tags": ["plan"], "lang": "fr"}`,
		},
	}

	_, created, err = storage.Insert(ctx, upsertObj)
	if err != nil {
		t.Errorf("failed to upsert object: %v", err)
	}

	// Verify the upsert
	obj, err = storage.FindByID(ctx, "notes", "note4")
	if err != nil {
		t.Errorf("failed to find upserted object: %v", err)
	}
	if obj == nil {
		t.Fatal("upserted object not found")
	}

	name, ok = obj.GetString("title")
	if !ok {
		t.Error("failed to get upserted name field")
	}
	if name != "Roadmap 2027" {
		t.Errorf("expected upserted name 'Roadmap 2027', got '%s'", name)
	}

	if created {
		t.Error("upsert of an existing object reported created")
	}

	// Test LIST
	all, err := storage.List(ctx, "notes")
	if err != nil {
		t.Fatalf("failed to list objects: %v", err)
	}
	ids := map[string]bool{}
	for _, o := range all {
		ids[o.ID] = true
	}
	for _, id := range []string{"note1", "note3", "note4"} {
		if !ids[id] {
			t.Errorf("expected %s in list, got %v", id, ids)
		}
	}
	if ids["note2"] {
		t.Error("deleted object note2 still listed")
	}

	// Typed columns
	typed := object.NewRecord("notes", "typed")
	typed.SetField("title", "Typed Note")
	typed.SetField("revision", int64(42))
	typed.SetField("attachment", []byte{0, 1, 2, 255})
	if _, _, err := storage.Insert(ctx, typed); err != nil {
		t.Fatalf("failed to insert typed object: %v", err)
	}
	obj, err = storage.FindByID(ctx, "notes", "typed")
	if err != nil || obj == nil {
		t.Fatalf("failed to find typed object: obj=%v err=%v", obj, err)
	}
	if revision, ok := obj.GetInt64("revision"); !ok || revision != 42 {
		t.Errorf("expected revision 42, got %v (ok=%v)", revision, ok)
	}
	if attachment, ok := obj.GetBytes("attachment"); !ok || !bytes.Equal(attachment, []byte{0, 1, 2, 255}) {
		t.Errorf("expected attachment bytes to round trip, got %v (ok=%v)", attachment, ok)
	}
	if _, ok := obj.GetString("metadata"); ok {
		t.Error("expected unset nullable column to read as absent")
	}
	if _, err := storage.DeleteByID(ctx, "notes", "typed"); err != nil {
		t.Errorf("failed to delete typed object: %v", err)
	}
}

// TxTest checks Begin/Commit/Rollback. rollbackDiscards is false for
// engines whose transactions apply writes immediately.
func TxTest(t *testing.T, s storage.Storage, rollbackDiscards bool) {
	ctx := context.Background()

	err := s.CreateTables(ctx, schema.GetTestSchema())
	if err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
	for _, id := range []string{"tx1", "tx2"} {
		if _, err := s.DeleteByID(ctx, "notes", id); err != nil {
			t.Fatalf("failed to clean up %s: %v", id, err)
		}
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	o := object.NewRecord("notes", "tx1")
	o.SetField("title", "In Transaction")
	if _, _, err := tx.Insert(ctx, o); err != nil {
		t.Fatalf("failed to insert in transaction: %v", err)
	}
	v, err := tx.FindByID(ctx, "notes", "tx1")
	if err != nil || v == nil {
		t.Fatalf("transaction cannot read its own write: v=%v err=%v", v, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, storage.ErrTxDone) {
		t.Errorf("expected ErrTxDone on second commit, got %v", err)
	}

	v, err = s.FindByID(ctx, "notes", "tx1")
	if err != nil || v == nil {
		t.Fatalf("committed object not found: v=%v err=%v", v, err)
	}

	tx, err = s.Begin(ctx)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	o = object.NewRecord("notes", "tx2")
	o.SetField("title", "Rolled Back")
	if _, _, err := tx.Insert(ctx, o); err != nil {
		t.Fatalf("failed to insert in transaction: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("failed to roll back: %v", err)
	}

	v, err = s.FindByID(ctx, "notes", "tx2")
	if err != nil {
		t.Fatalf("failed to look up rolled back object: %v", err)
	}
	if rollbackDiscards && v != nil {
		t.Error("rolled back insert is visible")
	}

	for _, id := range []string{"tx1", "tx2"} {
		if _, err := s.DeleteByID(ctx, "notes", id); err != nil {
			t.Errorf("failed to clean up %s: %v", id, err)
		}
	}
}
