package schema

import (
	"sort"
	"strings"
)

// Logical column types understood by every backend. Each dialect maps them
// onto its own native types.
const (
	TypeText     = "text"
	TypeInteger  = "integer"
	TypeBlob     = "blob"
	TypeJSON     = "json"
	TypeDateTime = "datetime"
)

type Schema struct {
	DatabaseName string
	Tables       map[string]*TableSchema // Maps table names to their schemas
}

type TableSchema struct {
	TableName  string
	Fields     map[string]ColumnData // Maps field names to their definitions
	FieldOrder []string              // Order of fields for iteration
	PrimaryKey string                // Name of the primary key field
	Comment    string                // Optional comment for the table
}

type ColumnData struct {
	Name       string
	DataType   string
	Nullable   bool
	Default    any // Default value for the column, can be nil
	Comment    string
	Unique     bool
	Index      bool
	PrimaryKey bool // Indicates if this column is a primary key
}

func New() *Schema {
	return &Schema{
		Tables: make(map[string]*TableSchema),
	}
}

func (s *Schema) SetDatabaseName(name string) {
	s.DatabaseName = name
}

func (s *Schema) AddTable(table *TableSchema) {
	if table == nil {
		return
	}
	s.Tables[table.TableName] = table
}

func (s *Schema) GetTable(name string) (*TableSchema, bool) {
	table, exists := s.Tables[name]
	return table, exists
}

// TableNames returns the table names in a stable order so DDL runs the same
// way on every start.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NewTableSchema(name string) *TableSchema {
	return &TableSchema{
		TableName: name,
		Fields:    make(map[string]ColumnData),
	}
}

func (ts *TableSchema) AddField(field ColumnData) {
	if field.Name == "" {
		return
	}
	if _, exists := ts.Fields[field.Name]; !exists {
		ts.FieldOrder = append(ts.FieldOrder, field.Name)
	}
	ts.Fields[field.Name] = field
	if field.PrimaryKey {
		ts.PrimaryKey = field.Name
	}
}

// Columns returns the column definitions in declaration order.
func (ts *TableSchema) Columns() []ColumnData {
	cols := make([]ColumnData, 0, len(ts.FieldOrder))
	for _, name := range ts.FieldOrder {
		cols = append(cols, ts.Fields[name])
	}
	return cols
}

// HasField reports whether name is a declared column.
func (ts *TableSchema) HasField(name string) bool {
	_, ok := ts.Fields[name]
	return ok
}

// IsKeyColumn reports whether the column takes part in a key or index, which
// matters to engines that cannot index unbounded text.
func (c ColumnData) IsKeyColumn() bool {
	return c.PrimaryKey || c.Unique || c.Index || strings.EqualFold(c.Name, "id")
}
