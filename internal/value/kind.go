package value

import "fmt"

// Kind is the closed set of cell variants every dialect decodes into.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindBytea
	KindChar
	KindInt2
	KindInt4
	KindInt8
	KindText
	KindOid
	KindFloat4
	KindFloat8
	KindDecimal
	KindUUID
	KindTimestamp
	KindTimestamptz
	KindDate
	KindTime
	KindJSON
	KindUnknown
)

var kindTags = [...]string{
	KindNull:        "null",
	KindBool:        "bool",
	KindBytea:       "bytea",
	KindChar:        "char",
	KindInt2:        "int2",
	KindInt4:        "int4",
	KindInt8:        "int8",
	KindText:        "text",
	KindOid:         "oid",
	KindFloat4:      "float4",
	KindFloat8:      "float8",
	KindDecimal:     "decimal",
	KindUUID:        "uuid",
	KindTimestamp:   "timestamp",
	KindTimestamptz: "timestamptz",
	KindDate:        "date",
	KindTime:        "time",
	KindJSON:        "json",
	KindUnknown:     "unknown",
}

// String returns the wire tag of the kind.
func (k Kind) String() string {
	if int(k) < len(kindTags) {
		return kindTags[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a wire tag back to its kind.
func ParseKind(tag string) (Kind, error) {
	for i, candidate := range kindTags {
		if candidate == tag {
			return Kind(i), nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind %q", tag)
}

// TypeName is the column type name reported to clients. Oid reports as int4.
func (k Kind) TypeName() string {
	if k == KindOid {
		return "int4"
	}
	return k.String()
}

// SimpleType buckets a kind for chart configuration.
func (k Kind) SimpleType() string {
	switch k {
	case KindBool:
		return "boolean"
	case KindInt2, KindInt4, KindInt8, KindFloat4, KindFloat8, KindDecimal:
		return "number"
	case KindTimestamp, KindTimestamptz, KindDate, KindTime:
		return "date"
	case KindNull:
		return "null"
	default:
		return "string"
	}
}

func (k Kind) isInteger() bool {
	return k == KindInt2 || k == KindInt4 || k == KindInt8 || k == KindOid
}

func (k Kind) isTemporal() bool {
	return k == KindTimestamp || k == KindTimestamptz || k == KindDate || k == KindTime
}

func (k Kind) isString() bool {
	return k == KindChar || k == KindText || k == KindUnknown
}
