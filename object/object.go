package object

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Object is a single record as the storage backends see it: a table name, a
// string primary key and a bag of column values.
type Object struct {
	TableName string         `json:"table_name"`
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
}

func New() *Object {
	return &Object{
		Fields: make(map[string]any),
	}
}

// NewRecord returns an object for tableName keyed by id.
func NewRecord(tableName, id string) *Object {
	return &Object{
		TableName: tableName,
		ID:        id,
		Fields:    make(map[string]any),
	}
}

func (o *Object) GetField(fieldName string) (any, bool) {
	value, exists := o.Fields[fieldName]
	return value, exists
}

func (o *Object) SetField(fieldName string, value any) {
	if o.Fields == nil {
		o.Fields = make(map[string]any)
	}
	o.Fields[fieldName] = value
}

func (o *Object) GetTableName() string {
	return o.TableName
}

func (o *Object) SetTableName(tableName string) {
	o.TableName = tableName
}

func (o *Object) GetFields() map[string]any {
	return o.Fields
}

func (o *Object) SetFields(fields map[string]any) {
	o.Fields = fields
}

// GetString returns the field as a string. Byte slices are converted; a nil
// value reports false so nullable columns read as absent.
func (o *Object) GetString(fieldName string) (string, bool) {
	value, exists := o.Fields[fieldName]
	if !exists {
		return "", false
	}
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

// GetInt64 accepts every integer shape the drivers hand back, including
// decimal strings (mysql, oracle NUMBER) and float64 (JSON round trips).
func (o *Object) GetInt64(fieldName string) (int64, bool) {
	value, exists := o.Fields[fieldName]
	if !exists {
		return 0, false
	}
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func (o *Object) GetInt(fieldName string) (int, bool) {
	n, ok := o.GetInt64(fieldName)
	return int(n), ok
}

func (o *Object) GetFloat64(fieldName string) (float64, bool) {
	value, exists := o.Fields[fieldName]
	if !exists {
		return 0.0, false
	}
	floatValue, ok := value.(float64)
	return floatValue, ok
}

func (o *Object) GetBool(fieldName string) (bool, bool) {
	value, exists := o.Fields[fieldName]
	if !exists {
		return false, false
	}
	boolValue, ok := value.(bool)
	return boolValue, ok
}

// GetBytes returns binary column data. Backends that serialize records as
// JSON (s3) hand blobs back as base64 strings.
func (o *Object) GetBytes(fieldName string) ([]byte, bool) {
	value, exists := o.Fields[fieldName]
	if !exists {
		return nil, false
	}
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		data, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, false
		}
		return data, true
	default:
		return nil, false
	}
}

// GetTime parses a field written with SetTime. time.Time values are passed
// through for drivers that decode timestamps themselves.
func (o *Object) GetTime(fieldName string) (time.Time, bool) {
	value, exists := o.Fields[fieldName]
	if !exists {
		return time.Time{}, false
	}
	if t, ok := value.(time.Time); ok {
		return t, true
	}
	s, ok := o.GetString(fieldName)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTime stores t as RFC 3339 text, the one timestamp shape every backend
// round-trips unchanged.
func (o *Object) SetTime(fieldName string, t time.Time) {
	o.SetField(fieldName, t.UTC().Format(time.RFC3339Nano))
}

// SetJSON stores the JSON encoding of v as a string field.
func (o *Object) SetJSON(fieldName string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal field %s: %w", fieldName, err)
	}
	o.SetField(fieldName, string(data))
	return nil
}

// DecodeJSON unmarshals a JSON text field into dest. A missing or null field
// leaves dest untouched.
func (o *Object) DecodeJSON(fieldName string, dest any) error {
	s, ok := o.GetString(fieldName)
	if !ok || s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return fmt.Errorf("failed to unmarshal field %s: %w", fieldName, err)
	}
	return nil
}
