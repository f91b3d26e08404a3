// Package s3blob keeps attachment payloads as S3 objects.
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jadedragon942/ddwiki/blob"
	"github.com/jadedragon942/ddwiki/storage"
	s3storage "github.com/jadedragon942/ddwiki/storage/s3"
)

// Object metadata keys. S3 lower-cases user metadata names.
const (
	metaFilename = "filename"
	metaSize     = "size"
)

type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	loc      s3storage.Location
}

// Open connects to the bucket named by an s3:// URL (see s3storage.ParseURL).
func Open(ctx context.Context, connStr string) (*Store, error) {
	loc, err := s3storage.ParseURL(connStr)
	if err != nil {
		return nil, err
	}
	client, err := s3storage.NewClient(ctx, loc)
	if err != nil {
		return nil, err
	}
	return New(client, loc), nil
}

func New(client *s3.Client, loc s3storage.Location) *Store {
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		loc:      loc,
	}
}

func (s *Store) key(id string) string {
	return s.loc.Prefix + "blobs/" + id
}

func (s *Store) Put(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", blob.ErrEmpty
	}
	id := blob.NewID()
	key := s.key(id)

	storage.DebugLog("PutObject (blob)", key)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.loc.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
		// metadata values must be ASCII
		Metadata: map[string]string{
			metaFilename: url.QueryEscape(filename),
			metaSize:     strconv.Itoa(len(data)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob %s: %w", id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, fileID string) (*blob.Blob, error) {
	if !blob.ValidID(fileID) {
		return nil, nil
	}
	key := s.key(fileID)

	storage.DebugLog("GetObject (blob)", key)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.loc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if s3storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blob %s: %w", fileID, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", fileID, err)
	}

	filename, err := url.QueryUnescape(result.Metadata[metaFilename])
	if err != nil {
		filename = result.Metadata[metaFilename]
	}
	b := &blob.Blob{
		ID:       fileID,
		Filename: filename,
		MimeType: aws.ToString(result.ContentType),
		Size:     int64(len(data)),
		Data:     data,
	}
	if result.LastModified != nil {
		b.LastModified = *result.LastModified
	} else {
		b.LastModified = time.Now().UTC()
	}
	return b, nil
}

// Delete relies on S3 treating deletes of missing keys as success.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	if !blob.ValidID(fileID) {
		return nil
	}
	key := s.key(fileID)
	storage.DebugLog("DeleteObject (blob)", key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.loc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !s3storage.IsNotFound(err) {
		return fmt.Errorf("failed to delete blob %s: %w", fileID, err)
	}
	return nil
}
