// Package fsblob keeps attachment payloads as files in a local directory.
package fsblob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jadedragon942/ddwiki/blob"
	"github.com/natefinch/atomic"
)

// meta is written next to each payload. It is written after the payload,
// so a blob with a readable meta file always has its data.
type meta struct {
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// paths shards by the first two characters of the id.
func (s *Store) paths(id string) (dir, data, metaPath string) {
	dir = filepath.Join(s.dir, id[:2])
	return dir, filepath.Join(dir, id+".bin"), filepath.Join(dir, id+".json")
}

func (s *Store) Put(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", blob.ErrEmpty
	}
	id := blob.NewID()
	dir, dataPath, metaPath := s.paths(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}
	if _, err := os.Stat(metaPath); err == nil {
		return "", fmt.Errorf("blob %s already exists", id)
	}

	if err := atomic.WriteFile(dataPath, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", id, err)
	}
	m, err := json.Marshal(meta{
		Filename:     filename,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		LastModified: time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := atomic.WriteFile(metaPath, bytes.NewReader(m)); err != nil {
		os.Remove(dataPath)
		return "", fmt.Errorf("failed to write blob %s metadata: %w", id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, fileID string) (*blob.Blob, error) {
	if !blob.ValidID(fileID) {
		return nil, nil
	}
	_, dataPath, metaPath := s.paths(fileID)

	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s metadata: %w", fileID, err)
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt metadata for blob %s: %w", fileID, err)
	}

	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", fileID, err)
	}
	return &blob.Blob{
		ID:           fileID,
		Filename:     m.Filename,
		MimeType:     m.MimeType,
		Size:         m.Size,
		LastModified: m.LastModified,
		Data:         data,
	}, nil
}

// Delete removes the metadata first so a half-finished delete reads as
// absent.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	if !blob.ValidID(fileID) {
		return nil
	}
	_, dataPath, metaPath := s.paths(fileID)
	for _, p := range []string{metaPath, dataPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete blob %s: %w", fileID, err)
		}
	}
	return nil
}
