package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
)

// Location is a parsed "s3://bucket/prefix?region=..&endpoint=.." URL.
type Location struct {
	Bucket   string
	Prefix   string // empty or ending in "/"
	Region   string
	Endpoint string
}

// ParseURL parses an S3 connection string.
// Examples:
//   - "s3://my-bucket/wiki?region=us-east-1"
//   - "s3://my-bucket/wiki?region=us-east-1&endpoint=http://localhost:9000" (for MinIO)
func ParseURL(connStr string) (Location, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return Location{}, fmt.Errorf("invalid connection string: %w", err)
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("invalid scheme: expected s3, got %s", u.Scheme)
	}
	if u.Host == "" {
		return Location{}, errors.New("bucket must not be empty")
	}

	loc := Location{
		Bucket:   u.Host,
		Prefix:   strings.TrimPrefix(u.Path, "/"),
		Region:   u.Query().Get("region"),
		Endpoint: u.Query().Get("endpoint"),
	}
	if loc.Prefix != "" && !strings.HasSuffix(loc.Prefix, "/") {
		loc.Prefix += "/"
	}
	if loc.Region == "" {
		loc.Region = "us-east-1"
	}
	return loc, nil
}

// NewClient builds an S3 client for loc and checks that the bucket is
// reachable.
func NewClient(ctx context.Context, loc Location) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(loc.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var options []func(*s3.Options)
	if loc.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(loc.Endpoint)
			o.UsePathStyle = true // MinIO and most S3-compatible services
		})
	}
	client := s3.NewFromConfig(cfg, options...)

	storage.DebugLog("HeadBucket", loc.Bucket)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(loc.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", loc.Bucket, err)
	}
	return client, nil
}

// IsNotFound reports whether err is S3's answer for a missing key. GetObject
// returns NoSuchKey; HeadObject has no body and returns NotFound.
func IsNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}

// S3Storage keeps one JSON document per record under
// <prefix>tables/<table>/objects/<id>.json.
type S3Storage struct {
	mu       sync.RWMutex
	client   *s3.Client
	uploader *manager.Uploader
	loc      Location
	sch      *schema.Schema
}

// record is the stored document.
type record struct {
	ID        string         `json:"id"`
	TableName string         `json:"table_name"`
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func New() storage.Storage {
	return &S3Storage{}
}

func (s *S3Storage) Connect(ctx context.Context, connStr string) error {
	loc, err := ParseURL(connStr)
	if err != nil {
		return err
	}
	client, err := NewClient(ctx, loc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.client = client
	s.uploader = manager.NewUploader(client)
	s.loc = loc
	s.mu.Unlock()
	return nil
}

// CreateTables records the schema next to the data. S3 needs no DDL.
func (s *S3Storage) CreateTables(ctx context.Context, sch *schema.Schema) error {
	s.mu.RLock()
	uploader, loc := s.uploader, s.loc
	s.mu.RUnlock()
	if uploader == nil {
		return storage.ErrNotConnected
	}
	if sch == nil {
		return storage.ErrNoSchema
	}

	schemaData, err := json.MarshalIndent(sch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	schemaKey := loc.Prefix + "_schema.json"
	storage.DebugLog("PutObject (schema)", schemaKey)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(schemaKey),
		Body:        bytes.NewReader(schemaData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload schema: %w", err)
	}

	s.mu.Lock()
	s.sch = sch
	s.mu.Unlock()
	return nil
}

type conn struct {
	client   *s3.Client
	uploader *manager.Uploader
	loc      Location
	tbl      *schema.TableSchema
}

func (s *S3Storage) conn(tblName string) (*conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, storage.ErrNotConnected
	}
	if s.sch == nil {
		return nil, storage.ErrNoSchema
	}
	tbl, ok := s.sch.GetTable(tblName)
	if !ok {
		return nil, fmt.Errorf("table %s not found in schema", tblName)
	}
	return &conn{client: s.client, uploader: s.uploader, loc: s.loc, tbl: tbl}, nil
}

func (c *conn) tablePrefix() string {
	return c.loc.Prefix + "tables/" + c.tbl.TableName + "/objects/"
}

func (c *conn) key(id string) string {
	return c.tablePrefix() + url.PathEscape(id) + ".json"
}

func (c *conn) exists(ctx context.Context, id string) (bool, error) {
	key := c.key(id)
	storage.DebugLog("HeadObject", key)
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.loc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check if object exists: %w", err)
	}
	return true, nil
}

func (c *conn) put(ctx context.Context, obj *object.Object) ([]byte, error) {
	for name := range obj.Fields {
		if !c.tbl.HasField(name) {
			return nil, fmt.Errorf("field %s not found in table %s schema", name, c.tbl.TableName)
		}
	}
	data, err := json.Marshal(record{
		ID:        obj.ID,
		TableName: c.tbl.TableName,
		Fields:    obj.Fields,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object: %w", err)
	}

	key := c.key(obj.ID)
	storage.DebugLog("PutObject", key)
	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.loc.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload object: %w", err)
	}
	return data, nil
}

// get loads one stored document. Numbers decode as json.Number so integer
// columns keep full precision.
func (c *conn) get(ctx context.Context, key string) (*object.Object, error) {
	storage.DebugLog("GetObject", key)
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.loc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	dec := json.NewDecoder(result.Body)
	dec.UseNumber()
	var rec record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal object %s: %w", key, err)
	}
	obj := object.NewRecord(rec.TableName, rec.ID)
	if rec.Fields != nil {
		obj.Fields = rec.Fields
	}
	return obj, nil
}

func (c *conn) each(ctx context.Context, fn func(*object.Object) bool) error {
	storage.DebugLog("ListObjectsV2", c.tablePrefix())
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.loc.Bucket),
		Prefix: aws.String(c.tablePrefix()),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, item := range page.Contents {
			if !strings.HasSuffix(aws.ToString(item.Key), ".json") {
				continue
			}
			obj, err := c.get(ctx, aws.ToString(item.Key))
			if err != nil {
				return err
			}
			// deleted between list and get
			if obj == nil {
				continue
			}
			if !fn(obj) {
				return nil
			}
		}
	}
	return nil
}

func (s *S3Storage) Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error) {
	if obj == nil || obj.ID == "" {
		return nil, false, errors.New("object and object id must not be empty")
	}
	c, err := s.conn(obj.TableName)
	if err != nil {
		return nil, false, err
	}
	found, err := c.exists(ctx, obj.ID)
	if err != nil {
		return nil, false, err
	}
	data, err := c.put(ctx, obj)
	if err != nil {
		return nil, false, err
	}
	return data, !found, nil
}

// Update rewrites the whole document with the stored fields overlaid by
// obj's fields.
func (s *S3Storage) Update(ctx context.Context, obj *object.Object) (bool, error) {
	if obj == nil || obj.ID == "" {
		return false, errors.New("object and object id must not be empty")
	}
	c, err := s.conn(obj.TableName)
	if err != nil {
		return false, err
	}
	current, err := c.get(ctx, c.key(obj.ID))
	if err != nil || current == nil {
		return false, err
	}
	for k, v := range obj.Fields {
		current.SetField(k, v)
	}
	if _, err := c.put(ctx, current); err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3Storage) FindByID(ctx context.Context, tblName, id string) (*object.Object, error) {
	if tblName == "" || id == "" {
		return nil, errors.New("table name and id must not be empty")
	}
	c, err := s.conn(tblName)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.key(id))
}

// FindByKey scans the table; S3 has no secondary indexes.
func (s *S3Storage) FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error) {
	if tblName == "" || key == "" || value == "" {
		return nil, errors.New("table name, key, and value must not be empty")
	}
	if key == "id" {
		return s.FindByID(ctx, tblName, value)
	}
	c, err := s.conn(tblName)
	if err != nil {
		return nil, err
	}

	var match *object.Object
	err = c.each(ctx, func(obj *object.Object) bool {
		if v, ok := obj.GetField(key); ok && v != nil && fmt.Sprintf("%v", v) == value {
			match = obj
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *S3Storage) List(ctx context.Context, tblName string) ([]*object.Object, error) {
	c, err := s.conn(tblName)
	if err != nil {
		return nil, err
	}
	var out []*object.Object
	err = c.each(ctx, func(obj *object.Object) bool {
		out = append(out, obj)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *S3Storage) DeleteByID(ctx context.Context, tblName, id string) (bool, error) {
	c, err := s.conn(tblName)
	if err != nil {
		return false, err
	}
	found, err := c.exists(ctx, id)
	if err != nil || !found {
		return false, err
	}

	key := c.key(id)
	storage.DebugLog("DeleteObject", key)
	_, err = c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.loc.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete object: %w", err)
	}
	return true, nil
}

// Begin returns a passthrough transaction. Each record is one S3 object and
// a PUT replaces it atomically.
func (s *S3Storage) Begin(ctx context.Context) (storage.Tx, error) {
	s.mu.RLock()
	connected := s.client != nil
	s.mu.RUnlock()
	if !connected {
		return nil, storage.ErrNotConnected
	}
	return storage.NewPassthroughTx(s), nil
}

func (s *S3Storage) ResetConnection(ctx context.Context) error {
	s.mu.Lock()
	s.client = nil
	s.uploader = nil
	s.mu.Unlock()
	return nil
}
