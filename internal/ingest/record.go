package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is one data row keyed by header name. Keys keep header order.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord creates an empty record
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Set stores v under key. A key that already exists keeps its position.
func (r *Record) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under the exact key
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Lookup finds a column ignoring case and surrounding whitespace.
// An exact match wins over a case-insensitive one.
func (r *Record) Lookup(column string) (any, bool) {
	if v, ok := r.values[column]; ok {
		return v, true
	}
	want := strings.TrimSpace(column)
	for _, k := range r.keys {
		if strings.EqualFold(strings.TrimSpace(k), want) {
			return r.values[k], true
		}
	}
	return nil, false
}

// Text returns the cell under column as text, "" when absent
func (r *Record) Text(column string) string {
	v, ok := r.Lookup(column)
	if !ok {
		return ""
	}
	return CellText(v)
}

// Keys returns the column names in header order
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Record) Len() int {
	return len(r.keys)
}

// Clone returns a shallow copy
func (r *Record) Clone() *Record {
	c := &Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(c.keys, r.keys)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON writes the record as an object with keys in header order
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CellText renders a raw cell as text. nil is "".
func CellText(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(c), 'f', -1, 32)
	case int:
		return strconv.Itoa(c)
	case int64:
		return strconv.FormatInt(c, 10)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}
