package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is one stored row: its primary key and the requested columns.
// Text columns are always string, never []byte.
type Row struct {
	ID     int64
	Fields map[string]any
}

// Record is the explicit, schema-versioned view of a row handed to rules.
// SchemaVersion names the last migration applied to Table when the run
// started; it is empty on a fresh database.
type Record struct {
	Table         string
	Key           string
	ID            int64
	SchemaVersion string
	Fields        map[string]any
}

// String returns the named field as a string. Missing and null fields yield
// "" and false.
func (r Record) String(field string) (string, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// Int returns the named field as an integer, accepting the numeric and text
// forms drivers return.
func (r Record) Int(field string) (int64, bool) {
	return AsInt(r.Fields[field])
}

// AsInt converts a column or JSON value to an integer.
func AsInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Revision is the latest saved revision of a page. Content is the raw JSON
// object holding every page field.
type Revision struct {
	ID       int64
	ObjectID int64
	Content  []byte
}

// LedgerEntry records an applied migration.
type LedgerEntry struct {
	Name      string
	RunID     string
	AppliedAt time.Time
}

// ColumnValue converts a field value into the form stored in a text or
// integer column. Content trees, mappings and lists are encoded as JSON text.
func ColumnValue(v any) (any, error) {
	switch t := v.(type) {
	case ContentTree:
		b, err := t.Marshal()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case map[string]any, []any:
		b, err := EncodeValue(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		return t.String(), nil
	case []byte:
		return string(t), nil
	default:
		return v, nil
	}
}
