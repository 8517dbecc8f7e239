package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row maps column names to values in driver order.
type Row struct {
	columns []string
	values  []Value
}

func NewRow(capacity int) *Row {
	return &Row{
		columns: make([]string, 0, capacity),
		values:  make([]Value, 0, capacity),
	}
}

// Set appends the column, or replaces its value in place when the name is
// already present.
func (r *Row) Set(column string, v Value) {
	for i, existing := range r.columns {
		if existing == column {
			r.values[i] = v
			return
		}
	}
	r.columns = append(r.columns, column)
	r.values = append(r.values, v)
}

func (r *Row) Get(column string) (Value, bool) {
	for i, existing := range r.columns {
		if existing == column {
			return r.values[i], true
		}
	}
	return Value{}, false
}

func (r *Row) Len() int { return len(r.columns) }

func (r *Row) Columns() []string { return append([]string(nil), r.columns...) }

func (r *Row) Values() []Value { return append([]Value(nil), r.values...) }

// At returns the i-th column and value.
func (r *Row) At(i int) (string, Value) { return r.columns[i], r.values[i] }

func (r *Row) MarshalJSON() ([]byte, error) {
	return r.marshal(func(v Value) (json.RawMessage, error) { return json.Marshal(v) })
}

// MarshalPlainJSON encodes the row as an ordered object of bare payloads.
func (r *Row) MarshalPlainJSON() ([]byte, error) {
	return r.marshal(func(v Value) (json.RawMessage, error) { return json.Marshal(v.Plain()) })
}

func (r *Row) marshal(encode func(Value) (json.RawMessage, error)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, column := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		encoded, err := encode(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", column, err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the key order of the encoded object.
func (r *Row) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode row: expected object")
	}
	r.columns = r.columns[:0]
	r.values = r.values[:0]
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return fmt.Errorf("decode row key: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return fmt.Errorf("decode row: non-string key")
		}
		var v Value
		if err := decoder.Decode(&v); err != nil {
			return fmt.Errorf("decode column %q: %w", key, err)
		}
		r.Set(key, v)
	}
	if _, err := decoder.Token(); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// Equal compares column order and values.
func (r *Row) Equal(other *Row) bool {
	if r.Len() != other.Len() {
		return false
	}
	for i := range r.columns {
		if r.columns[i] != other.columns[i] || !r.values[i].Equal(other.values[i]) {
			return false
		}
	}
	return true
}

// ResultSet is the ordered, capped output of one query.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      []*Row   `json:"rows"`
	Truncated bool     `json:"truncated"`
}

func (rs ResultSet) Len() int { return len(rs.Rows) }

// Builder accumulates rows up to a cap.
type Builder struct {
	limit int
	set   ResultSet
}

// NewBuilder returns a builder that keeps at most limit rows. limit <= 0
// means unbounded.
func NewBuilder(columns []string, limit int) *Builder {
	return &Builder{
		limit: limit,
		set: ResultSet{
			Columns: append([]string(nil), columns...),
			Rows:    make([]*Row, 0),
		},
	}
}

// Add appends a row and reports whether more rows are accepted.
func (b *Builder) Add(row *Row) bool {
	if b.Full() {
		b.set.Truncated = true
		return false
	}
	b.set.Rows = append(b.set.Rows, row)
	return !b.Full()
}

func (b *Builder) Full() bool {
	return b.limit > 0 && len(b.set.Rows) >= b.limit
}

// MarkTruncated records that the source had rows past the cap.
func (b *Builder) MarkTruncated() { b.set.Truncated = true }

func (b *Builder) Result() ResultSet { return b.set }
