// Package blobtest checks that a blob.Store keeps the attachment contract.
package blobtest

import (
	"bytes"
	"context"
	"testing"

	"github.com/jadedragon942/ddwiki/blob"
)

func StoreTest(t *testing.T, s blob.Store) {
	ctx := context.Background()

	missing, err := s.Get(ctx, blob.NewID())
	if err != nil || missing != nil {
		t.Fatalf("unknown id should be absent: b=%v err=%v", missing, err)
	}

	data := []byte("line one\nline two\n")
	id, err := s.Put(ctx, data, "notes.txt", "text/plain")
	if err != nil {
		t.Fatalf("failed to put blob: %v", err)
	}
	if !blob.ValidID(id) {
		t.Fatalf("put returned malformed id %q", id)
	}

	b, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("failed to get blob: %v", err)
	}
	if b == nil {
		t.Fatal("stored blob not found")
	}
	if !bytes.Equal(b.Data, data) {
		t.Errorf("data mismatch: got %q", b.Data)
	}
	if b.ID != id || b.Filename != "notes.txt" || b.MimeType != "text/plain" {
		t.Errorf("metadata mismatch: %+v", b)
	}
	if b.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), b.Size)
	}
	if b.LastModified.IsZero() {
		t.Error("expected LastModified to be set")
	}

	// Same filename again is a separate blob
	id2, err := s.Put(ctx, []byte("other"), "notes.txt", "text/plain")
	if err != nil {
		t.Fatalf("failed to put second blob: %v", err)
	}
	if id2 == id {
		t.Fatal("second put reused the file id")
	}
	b, err = s.Get(ctx, id)
	if err != nil || b == nil || !bytes.Equal(b.Data, data) {
		t.Fatalf("second put disturbed the first blob: b=%v err=%v", b, err)
	}

	if _, err := s.Put(ctx, nil, "empty.txt", "text/plain"); err == nil {
		t.Error("expected error storing empty data")
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("failed to delete blob: %v", err)
	}
	b, err = s.Get(ctx, id)
	if err != nil || b != nil {
		t.Fatalf("deleted blob still readable: b=%v err=%v", b, err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	if err := s.Delete(ctx, blob.NewID()); err != nil {
		t.Errorf("delete of unknown id should be a no-op, got %v", err)
	}
	if err := s.Delete(ctx, id2); err != nil {
		t.Errorf("failed to delete second blob: %v", err)
	}
}
