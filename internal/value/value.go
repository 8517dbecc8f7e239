package value

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"
)

const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05.999999999"
	TimestampLayout = "2006-01-02T15:04:05.999999999"
)

// Value is one result cell. A typed value with Valid false is SQL NULL of
// that declared type; KindNull is used when no type information exists.
type Value struct {
	kind  Kind
	valid bool
	b     bool
	i     int64
	f32   float32
	f64   float64
	s     string
	raw   []byte
	dec   *apd.Decimal
	id    uuid.UUID
	t     time.Time
}

func Null() Value { return Value{kind: KindNull} }

// NullOf returns the typed NULL of kind.
func NullOf(kind Kind) Value { return Value{kind: kind} }

func Bool(v bool) Value        { return Value{kind: KindBool, valid: true, b: v} }
func Int2(v int16) Value       { return Value{kind: KindInt2, valid: true, i: int64(v)} }
func Int4(v int32) Value       { return Value{kind: KindInt4, valid: true, i: int64(v)} }
func Int8(v int64) Value       { return Value{kind: KindInt8, valid: true, i: v} }
func Oid(v uint32) Value       { return Value{kind: KindOid, valid: true, i: int64(v)} }
func Text(v string) Value      { return Value{kind: KindText, valid: true, s: v} }
func Char(v string) Value      { return Value{kind: KindChar, valid: true, s: v} }
func Unknown(raw string) Value { return Value{kind: KindUnknown, valid: true, s: raw} }
func UUID(v uuid.UUID) Value   { return Value{kind: KindUUID, valid: true, id: v} }

// Canonical NaN bit patterns. Equal compares floats by bits, and the wire form
// carries NaN as a bare "NaN", so every NaN payload collapses to one pattern.
const (
	canonicalNaN32 uint32 = 0x7fc00000
	canonicalNaN64 uint64 = 0x7ff8000000000000
)

func Float4(v float32) Value {
	if math.IsNaN(float64(v)) {
		v = math.Float32frombits(canonicalNaN32)
	}
	return Value{kind: KindFloat4, valid: true, f32: v}
}

func Float8(v float64) Value {
	if math.IsNaN(v) {
		v = math.Float64frombits(canonicalNaN64)
	}
	return Value{kind: KindFloat8, valid: true, f64: v}
}

func Bytea(v []byte) Value {
	return Value{kind: KindBytea, valid: true, raw: append([]byte(nil), v...)}
}

func Decimal(v *apd.Decimal) Value {
	if v == nil {
		return NullOf(KindDecimal)
	}
	d := new(apd.Decimal).Set(v)
	return Value{kind: KindDecimal, valid: true, dec: d}
}

// Timestamp stores a naive timestamp; the wall clock is kept and the zone dropped.
func Timestamp(v time.Time) Value {
	naive := time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC)
	return Value{kind: KindTimestamp, valid: true, t: naive}
}

func Timestamptz(v time.Time) Value { return Value{kind: KindTimestamptz, valid: true, t: v} }

func Date(v time.Time) Value {
	return Value{kind: KindDate, valid: true, t: time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)}
}

func Time(v time.Time) Value {
	return Value{kind: KindTime, valid: true, t: time.Date(0, 1, 1, v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), time.UTC)}
}

// JSON stores a JSON document. Invalid documents degrade to a typed NULL.
func JSON(doc []byte) Value {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return NullOf(KindJSON)
	}
	return Value{kind: KindJSON, valid: true, raw: buf.Bytes()}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) Valid() bool  { return v.valid }
func (v Value) IsNull() bool { return !v.valid }

func (v Value) TypeName() string   { return v.kind.TypeName() }
func (v Value) SimpleType() string { return v.kind.SimpleType() }

func (v Value) BoolValue() (bool, bool) { return v.b, v.valid && v.kind == KindBool }

func (v Value) IntValue() (int64, bool) { return v.i, v.valid && v.kind.isInteger() }

func (v Value) Float4Value() (float32, bool) { return v.f32, v.valid && v.kind == KindFloat4 }

func (v Value) Float8Value() (float64, bool) { return v.f64, v.valid && v.kind == KindFloat8 }

func (v Value) StringValue() (string, bool) { return v.s, v.valid && v.kind.isString() }

func (v Value) BytesValue() ([]byte, bool) { return v.raw, v.valid && v.kind == KindBytea }

func (v Value) JSONValue() (json.RawMessage, bool) {
	return json.RawMessage(v.raw), v.valid && v.kind == KindJSON
}

func (v Value) DecimalValue() (*apd.Decimal, bool) { return v.dec, v.valid && v.kind == KindDecimal }

func (v Value) UUIDValue() (uuid.UUID, bool) { return v.id, v.valid && v.kind == KindUUID }

func (v Value) TimeValue() (time.Time, bool) { return v.t, v.valid && v.kind.isTemporal() }

// Number reports the value as float64 for numeric kinds.
func (v Value) Number() (float64, bool) {
	if !v.valid {
		return 0, false
	}
	switch v.kind {
	case KindInt2, KindInt4, KindInt8:
		return float64(v.i), true
	case KindFloat4:
		return float64(v.f32), true
	case KindFloat8:
		return v.f64, true
	case KindDecimal:
		f, err := v.dec.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Equal compares kind, presence and payload. Float payloads compare by bit
// pattern so NaN equals itself and +0 differs from -0.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind || v.valid != other.valid {
		return false
	}
	if !v.valid {
		return true
	}
	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindInt2, KindInt4, KindInt8, KindOid:
		return v.i == other.i
	case KindFloat4:
		return math.Float32bits(v.f32) == math.Float32bits(other.f32)
	case KindFloat8:
		return math.Float64bits(v.f64) == math.Float64bits(other.f64)
	case KindChar, KindText, KindUnknown:
		return v.s == other.s
	case KindBytea, KindJSON:
		return bytes.Equal(v.raw, other.raw)
	case KindDecimal:
		return canonicalDecimal(v.dec) == canonicalDecimal(other.dec)
	case KindUUID:
		return v.id == other.id
	case KindTimestamp, KindTimestamptz, KindDate, KindTime:
		return v.t.Equal(other.t)
	default:
		return true
	}
}

// Hash is consistent with Equal.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte{byte(v.kind)})
	if !v.valid {
		_, _ = h.Write([]byte{0})
		return h.Sum64()
	}
	_, _ = h.Write([]byte{1})

	var scratch [8]byte
	writeUint := func(n uint64) {
		binary.LittleEndian.PutUint64(scratch[:], n)
		_, _ = h.Write(scratch[:])
	}
	switch v.kind {
	case KindBool:
		if v.b {
			writeUint(1)
		} else {
			writeUint(0)
		}
	case KindInt2, KindInt4, KindInt8, KindOid:
		writeUint(uint64(v.i))
	case KindFloat4:
		writeUint(uint64(math.Float32bits(v.f32)))
	case KindFloat8:
		writeUint(math.Float64bits(v.f64))
	case KindChar, KindText, KindUnknown:
		_, _ = h.Write([]byte(v.s))
	case KindBytea, KindJSON:
		_, _ = h.Write(v.raw)
	case KindDecimal:
		_, _ = h.Write([]byte(canonicalDecimal(v.dec)))
	case KindUUID:
		_, _ = h.Write(v.id[:])
	case KindTimestamp, KindTimestamptz, KindDate, KindTime:
		writeUint(uint64(v.t.Unix()))
		writeUint(uint64(v.t.Nanosecond()))
	}
	return h.Sum64()
}

// String renders the payload the way it is shown in result grids.
func (v Value) String() string {
	if !v.valid {
		return "NULL"
	}
	switch v.kind {
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt2, KindInt4, KindInt8, KindOid:
		return formatInt(v.i)
	case KindFloat4:
		return formatFloat(float64(v.f32), 32)
	case KindFloat8:
		return formatFloat(v.f64, 64)
	case KindChar, KindText, KindUnknown:
		return v.s
	case KindBytea:
		return encodeBytes(v.raw)
	case KindJSON:
		return string(v.raw)
	case KindDecimal:
		return v.dec.Text('f')
	case KindUUID:
		return v.id.String()
	case KindTimestamp:
		return v.t.Format(TimestampLayout)
	case KindTimestamptz:
		return v.t.Format(time.RFC3339Nano)
	case KindDate:
		return v.t.Format(DateLayout)
	case KindTime:
		return v.t.Format(TimeLayout)
	default:
		return ""
	}
}

func canonicalDecimal(d *apd.Decimal) string {
	if d == nil {
		return ""
	}
	text := d.Text('f')
	if strings.Contains(text, ".") {
		text = strings.TrimRight(text, "0")
		text = strings.TrimSuffix(text, ".")
	}
	if text == "-0" {
		return "0"
	}
	return text
}
