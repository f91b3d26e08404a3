// Package sqlblob keeps attachment payloads in a table of any storage
// backend.
package sqlblob

import (
	"context"
	"fmt"
	"time"

	"github.com/jadedragon942/ddwiki/blob"
	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
)

const TableName = "blobs"

// AddTables registers the blobs table on sch.
func AddTables(sch *schema.Schema) {
	table := schema.NewTableSchema(TableName)
	table.AddField(schema.ColumnData{Name: "id", DataType: schema.TypeText, PrimaryKey: true})
	table.AddField(schema.ColumnData{Name: "filename", DataType: schema.TypeText})
	table.AddField(schema.ColumnData{Name: "mime_type", DataType: schema.TypeText})
	table.AddField(schema.ColumnData{Name: "size", DataType: schema.TypeInteger})
	table.AddField(schema.ColumnData{Name: "last_modified", DataType: schema.TypeDateTime})
	table.AddField(schema.ColumnData{Name: "data", DataType: schema.TypeBlob})
	sch.AddTable(table)
}

type Store struct {
	s storage.Storage
}

// New returns a Store on s. The caller creates the tables, see AddTables.
func New(s storage.Storage) *Store {
	return &Store{s: s}
}

func (st *Store) Put(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", blob.ErrEmpty
	}
	id := blob.NewID()

	obj := object.NewRecord(TableName, id)
	obj.SetField("filename", filename)
	obj.SetField("mime_type", mimeType)
	obj.SetField("size", int64(len(data)))
	obj.SetTime("last_modified", time.Now())
	obj.SetField("data", data)

	_, created, err := st.s.Insert(ctx, obj)
	if err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	if !created {
		return "", fmt.Errorf("blob %s already exists", id)
	}
	return id, nil
}

func (st *Store) Get(ctx context.Context, fileID string) (*blob.Blob, error) {
	if !blob.ValidID(fileID) {
		return nil, nil
	}
	obj, err := st.s.FindByID(ctx, TableName, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", fileID, err)
	}
	if obj == nil {
		return nil, nil
	}

	b := &blob.Blob{ID: obj.ID}
	b.Filename, _ = obj.GetString("filename")
	b.MimeType, _ = obj.GetString("mime_type")
	b.Size, _ = obj.GetInt64("size")
	b.LastModified, _ = obj.GetTime("last_modified")
	b.Data, _ = obj.GetBytes("data")
	return b, nil
}

func (st *Store) Delete(ctx context.Context, fileID string) error {
	if !blob.ValidID(fileID) {
		return nil
	}
	if _, err := st.s.DeleteByID(ctx, TableName, fileID); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", fileID, err)
	}
	return nil
}
