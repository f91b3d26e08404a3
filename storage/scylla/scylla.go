package scylla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/schema"
	"github.com/jadedragon942/ddwiki/storage"
)

type ScyllaDBStorage struct {
	mu          sync.RWMutex
	session     *gocql.Session
	keyspace    string
	replication int
	sch         *schema.Schema
}

func New() storage.Storage {
	return &ScyllaDBStorage{}
}

// ConnOptions is the parsed form of a ScyllaDB connection string.
type ConnOptions struct {
	Hosts       []string
	Keyspace    string
	Consistency gocql.Consistency
	Timeout     time.Duration
	Replication int
}

// ParseConnString parses "host1,host2/keyspace?consistency=quorum&timeout=5s&replication=1".
func ParseConnString(connStr string) (ConnOptions, error) {
	opts := ConnOptions{
		Consistency: gocql.Quorum,
		Timeout:     10 * time.Second,
		Replication: 3,
	}

	hostPart, rest, ok := strings.Cut(connStr, "/")
	if !ok || hostPart == "" {
		return opts, fmt.Errorf("invalid connection string format, expected: hosts/keyspace?options")
	}
	opts.Hosts = strings.Split(hostPart, ",")

	keyspace, query, _ := strings.Cut(rest, "?")
	if keyspace == "" {
		return opts, errors.New("keyspace must not be empty")
	}
	opts.Keyspace = keyspace

	for _, opt := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			continue
		}
		switch key {
		case "consistency":
			c, err := parseConsistency(value)
			if err != nil {
				return opts, err
			}
			opts.Consistency = c
		case "timeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return opts, fmt.Errorf("invalid timeout format: %w", err)
			}
			opts.Timeout = d
		case "replication":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return opts, fmt.Errorf("invalid replication factor: %s", value)
			}
			opts.Replication = n
		}
	}
	return opts, nil
}

func parseConsistency(value string) (gocql.Consistency, error) {
	switch strings.ToLower(value) {
	case "any":
		return gocql.Any, nil
	case "one":
		return gocql.One, nil
	case "two":
		return gocql.Two, nil
	case "three":
		return gocql.Three, nil
	case "quorum":
		return gocql.Quorum, nil
	case "all":
		return gocql.All, nil
	case "localone":
		return gocql.LocalOne, nil
	case "localquorum":
		return gocql.LocalQuorum, nil
	case "eachquorum":
		return gocql.EachQuorum, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported consistency level: %s", value)
	}
}

// Connect opens a session without binding it to the keyspace, which may
// not exist until CreateTables runs. Queries use qualified table names.
func (s *ScyllaDBStorage) Connect(ctx context.Context, connStr string) error {
	opts, err := ParseConnString(connStr)
	if err != nil {
		return err
	}

	cluster := gocql.NewCluster(opts.Hosts...)
	cluster.Consistency = opts.Consistency
	cluster.ProtoVersion = 4
	cluster.ConnectTimeout = opts.Timeout
	cluster.Timeout = opts.Timeout

	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to create ScyllaDB session: %w", err)
	}

	s.mu.Lock()
	s.session = session
	s.keyspace = opts.Keyspace
	s.replication = opts.Replication
	s.mu.Unlock()
	return nil
}

func columnType(col schema.ColumnData) string {
	switch col.DataType {
	case schema.TypeInteger:
		return "bigint"
	case schema.TypeBlob:
		return "blob"
	default:
		return "text"
	}
}

func (s *ScyllaDBStorage) CreateTables(ctx context.Context, sch *schema.Schema) error {
	s.mu.RLock()
	session, keyspace, replication := s.session, s.keyspace, s.replication
	s.mu.RUnlock()
	if session == nil {
		return storage.ErrNotConnected
	}
	if sch == nil {
		return storage.ErrNoSchema
	}

	stmts := []string{fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		keyspace, replication)}

	for _, name := range sch.TableNames() {
		tbl, _ := sch.GetTable(name)
		if !tbl.HasField("id") {
			return fmt.Errorf("table %s has no id column", name)
		}
		defs := []string{"id text PRIMARY KEY"}
		for _, col := range tbl.Columns() {
			if col.Name == "id" {
				continue
			}
			defs = append(defs, fmt.Sprintf("%s %s", col.Name, columnType(col)))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)", keyspace, name, strings.Join(defs, ", ")))

		// FindByKey on anything but the partition key needs an index
		for _, col := range tbl.Columns() {
			if col.Name != "id" && (col.Unique || col.Index) {
				stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s.%s (%s)",
					name, col.Name, keyspace, name, col.Name))
			}
		}
	}

	for _, stmt := range stmts {
		storage.DebugLog(stmt)
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	s.mu.Lock()
	s.sch = sch
	s.mu.Unlock()
	return nil
}

func (s *ScyllaDBStorage) state(tblName string) (*gocql.Session, string, *schema.TableSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, "", nil, storage.ErrNotConnected
	}
	if s.sch == nil {
		return nil, "", nil, storage.ErrNoSchema
	}
	tbl, ok := s.sch.GetTable(tblName)
	if !ok {
		return nil, "", nil, fmt.Errorf("table %s not found in schema", tblName)
	}
	return s.session, s.keyspace, tbl, nil
}

func bindValue(col schema.ColumnData, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.DataType {
	case schema.TypeJSON:
		if str, ok := v.(string); ok {
			return str, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON field %s: %w", col.Name, err)
		}
		return string(data), nil
	case schema.TypeDateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
	case schema.TypeInteger:
		if n, ok := v.(int); ok {
			return int64(n), nil
		}
	}
	return v, nil
}

func (s *ScyllaDBStorage) exists(ctx context.Context, session *gocql.Session, keyspace, table, id string) (bool, error) {
	query := fmt.Sprintf("SELECT id FROM %s.%s WHERE id = ?", keyspace, table)
	storage.DebugLog(query, id)
	var found string
	if err := session.Query(query, id).WithContext(ctx).Scan(&found); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Insert writes the row with a CQL INSERT, which always overwrites. The
// created flag comes from a read beforehand.
func (s *ScyllaDBStorage) Insert(ctx context.Context, obj *object.Object) ([]byte, bool, error) {
	if obj == nil || obj.ID == "" {
		return nil, false, errors.New("object and object id must not be empty")
	}
	session, keyspace, tbl, err := s.state(obj.TableName)
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, false, err
	}

	found, err := s.exists(ctx, session, keyspace, tbl.TableName, obj.ID)
	if err != nil {
		return nil, false, err
	}

	columns := []string{"id"}
	placeholders := []string{"?"}
	values := []any{obj.ID}
	for name := range obj.Fields {
		if !tbl.HasField(name) {
			return nil, false, fmt.Errorf("field %s not found in table %s schema", name, tbl.TableName)
		}
	}
	for _, col := range tbl.Columns() {
		raw, ok := obj.Fields[col.Name]
		if col.Name == "id" || !ok {
			continue
		}
		v, err := bindValue(col, raw)
		if err != nil {
			return nil, false, err
		}
		columns = append(columns, col.Name)
		placeholders = append(placeholders, "?")
		values = append(values, v)
	}

	query := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		keyspace, tbl.TableName, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	storage.DebugLog(query, values...)
	if err := session.Query(query, values...).WithContext(ctx).Exec(); err != nil {
		return nil, false, err
	}
	return data, !found, nil
}

func (s *ScyllaDBStorage) Update(ctx context.Context, obj *object.Object) (bool, error) {
	if obj == nil || obj.ID == "" {
		return false, errors.New("object and object id must not be empty")
	}
	session, keyspace, tbl, err := s.state(obj.TableName)
	if err != nil {
		return false, err
	}

	// CQL UPDATE creates missing rows
	found, err := s.exists(ctx, session, keyspace, tbl.TableName, obj.ID)
	if err != nil || !found {
		return false, err
	}

	var sets []string
	var values []any
	for _, col := range tbl.Columns() {
		raw, ok := obj.Fields[col.Name]
		if col.Name == "id" || !ok {
			continue
		}
		v, err := bindValue(col, raw)
		if err != nil {
			return false, err
		}
		sets = append(sets, col.Name+" = ?")
		values = append(values, v)
	}
	if len(sets) == 0 {
		return true, nil
	}
	values = append(values, obj.ID)

	query := fmt.Sprintf("UPDATE %s.%s SET %s WHERE id = ?", keyspace, tbl.TableName, strings.Join(sets, ", "))
	storage.DebugLog(query, values...)
	if err := session.Query(query, values...).WithContext(ctx).Exec(); err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner struct {
	cols     []schema.ColumnData
	pointers []any
}

func newRowScanner(tbl *schema.TableSchema) *rowScanner {
	cols := tbl.Columns()
	rs := &rowScanner{cols: cols}
	for _, col := range cols {
		switch col.DataType {
		case schema.TypeInteger:
			rs.pointers = append(rs.pointers, new(*int64))
		case schema.TypeBlob:
			rs.pointers = append(rs.pointers, new([]byte))
		default:
			rs.pointers = append(rs.pointers, new(*string))
		}
	}
	return rs
}

func (rs *rowScanner) columnList() string {
	names := make([]string, 0, len(rs.cols))
	for _, col := range rs.cols {
		names = append(names, col.Name)
	}
	return strings.Join(names, ", ")
}

func (rs *rowScanner) object(tableName string) *object.Object {
	obj := object.NewRecord(tableName, "")
	for i, col := range rs.cols {
		switch p := rs.pointers[i].(type) {
		case **int64:
			if *p != nil {
				obj.Fields[col.Name] = **p
			} else {
				obj.Fields[col.Name] = nil
			}
		case **string:
			if *p != nil {
				obj.Fields[col.Name] = **p
			} else {
				obj.Fields[col.Name] = nil
			}
		case *[]byte:
			if *p != nil {
				obj.Fields[col.Name] = append([]byte(nil), *p...)
			} else {
				obj.Fields[col.Name] = nil
			}
		}
	}
	obj.ID, _ = obj.GetString("id")
	return obj
}

func (s *ScyllaDBStorage) FindByID(ctx context.Context, tblName, id string) (*object.Object, error) {
	return s.FindByKey(ctx, tblName, "id", id)
}

func (s *ScyllaDBStorage) FindByKey(ctx context.Context, tblName, key, value string) (*object.Object, error) {
	if tblName == "" || key == "" || value == "" {
		return nil, errors.New("table name, key, and value must not be empty")
	}
	session, keyspace, tbl, err := s.state(tblName)
	if err != nil {
		return nil, err
	}
	if !tbl.HasField(key) {
		return nil, fmt.Errorf("field %s not found in table %s schema", key, tblName)
	}

	rs := newRowScanner(tbl)
	query := fmt.Sprintf("SELECT %s FROM %s.%s WHERE %s = ?", rs.columnList(), keyspace, tbl.TableName, key)
	storage.DebugLog(query, value)

	iter := session.Query(query, value).WithContext(ctx).Iter()
	if !iter.Scan(rs.pointers...) {
		if err := iter.Close(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	obj := rs.object(tbl.TableName)
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *ScyllaDBStorage) List(ctx context.Context, tblName string) ([]*object.Object, error) {
	session, keyspace, tbl, err := s.state(tblName)
	if err != nil {
		return nil, err
	}

	rs := newRowScanner(tbl)
	query := fmt.Sprintf("SELECT %s FROM %s.%s", rs.columnList(), keyspace, tbl.TableName)
	storage.DebugLog(query)

	var out []*object.Object
	iter := session.Query(query).WithContext(ctx).Iter()
	for iter.Scan(rs.pointers...) {
		out = append(out, rs.object(tbl.TableName))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ScyllaDBStorage) DeleteByID(ctx context.Context, tblName, id string) (bool, error) {
	session, keyspace, tbl, err := s.state(tblName)
	if err != nil {
		return false, err
	}

	found, err := s.exists(ctx, session, keyspace, tbl.TableName, id)
	if err != nil || !found {
		return false, err
	}

	query := fmt.Sprintf("DELETE FROM %s.%s WHERE id = ?", keyspace, tbl.TableName)
	storage.DebugLog(query, id)
	if err := session.Query(query, id).WithContext(ctx).Exec(); err != nil {
		return false, err
	}
	return true, nil
}

// Begin returns a passthrough transaction: CQL has no multi-statement
// transactions, but every write here replaces one whole row.
func (s *ScyllaDBStorage) Begin(ctx context.Context) (storage.Tx, error) {
	s.mu.RLock()
	connected := s.session != nil
	s.mu.RUnlock()
	if !connected {
		return nil, storage.ErrNotConnected
	}
	return storage.NewPassthroughTx(s), nil
}

func (s *ScyllaDBStorage) ResetConnection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	return nil
}
