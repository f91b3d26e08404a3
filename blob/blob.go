// Package blob stores attachment payloads under generated file ids,
// independently of the pages that reference them.
package blob

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrEmpty = errors.New("blob data must not be empty")

// Blob is a stored attachment payload with its metadata.
type Blob struct {
	ID           string
	Filename     string
	MimeType     string
	Size         int64
	LastModified time.Time
	Data         []byte
}

// Store persists blobs. Get returns (nil, nil) for an unknown id and Delete
// of an unknown id is not an error.
type Store interface {
	Put(ctx context.Context, data []byte, filename, mimeType string) (string, error)
	Get(ctx context.Context, fileID string) (*Blob, error)
	Delete(ctx context.Context, fileID string) error
}

// NewID returns a fresh file id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape NewID produces. Backends that
// turn ids into paths or keys reject anything else.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
