package bigquery

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

var kinds = map[string]value.Kind{
	"INTEGER":    value.KindInt8,
	"INT64":      value.KindInt8,
	"FLOAT":      value.KindFloat8,
	"FLOAT64":    value.KindFloat8,
	"NUMERIC":    value.KindDecimal,
	"BIGNUMERIC": value.KindDecimal,
	"DECIMAL":    value.KindDecimal,
	"BIGDECIMAL": value.KindDecimal,
	"BOOLEAN":    value.KindBool,
	"BOOL":       value.KindBool,
	"STRING":     value.KindText,
	"BYTES":      value.KindBytea,
	"DATE":       value.KindDate,
	"TIME":       value.KindTime,
	"DATETIME":   value.KindTimestamp,
	"TIMESTAMP":  value.KindTimestamptz,
	"JSON":       value.KindJSON,
	"RECORD":     value.KindJSON,
	"STRUCT":     value.KindJSON,
}

// KindOf maps a schema field type. Repeated fields are returned as JSON
// arrays.
func KindOf(fieldType, mode string) value.Kind {
	if strings.EqualFold(mode, "REPEATED") {
		return value.KindJSON
	}
	if kind, ok := kinds[strings.ToUpper(fieldType)]; ok {
		return kind
	}
	return value.KindUnknown
}

func isRecord(f field) bool {
	t := strings.ToUpper(f.Type)
	return t == "RECORD" || t == "STRUCT"
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func decodeCell(f field, raw json.RawMessage) value.Value {
	kind := KindOf(f.Type, f.Mode)
	if isNull(raw) {
		return value.NullOf(kind)
	}
	if strings.EqualFold(f.Mode, "REPEATED") || isRecord(f) {
		encoded, err := json.Marshal(plainCell(f, raw))
		if err != nil {
			return value.NullOf(kind)
		}
		return value.JSON(encoded)
	}
	return decodeScalar(f, raw)
}

// decodeScalar handles the string-encoded scalar cells of the REST API.
func decodeScalar(f field, raw json.RawMessage) value.Value {
	kind := KindOf(f.Type, "")
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return value.NullOf(kind)
	}
	switch kind {
	case value.KindBytea:
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return value.NullOf(kind)
		}
		return value.Bytea(decoded)
	case value.KindTimestamptz:
		if micros, err := strconv.ParseInt(text, 10, 64); err == nil {
			return value.Timestamptz(time.UnixMicro(micros).UTC())
		}
		if seconds, err := strconv.ParseFloat(text, 64); err == nil {
			return value.Timestamptz(time.UnixMicro(int64(seconds * 1e6)).UTC())
		}
		return value.NullOf(kind)
	case value.KindUnknown:
		return value.Unknown(text)
	default:
		return query.Convert(kind, text)
	}
}

// plainCell rebuilds nested f/v cells into ordinary JSON values.
func plainCell(f field, raw json.RawMessage) any {
	if isNull(raw) {
		return nil
	}
	if strings.EqualFold(f.Mode, "REPEATED") {
		var items []tableCell
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		element := f
		element.Mode = "NULLABLE"
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = plainCell(element, item.V)
		}
		return out
	}
	if isRecord(f) {
		var record tableRow
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil
		}
		out := make(recordObject, 0, len(f.Fields))
		for i, sub := range f.Fields {
			if i < len(record.F) {
				out = append(out, recordField{name: sub.Name, value: plainCell(sub, record.F[i].V)})
			}
		}
		return out
	}
	return decodeScalar(f, raw).Plain()
}

type recordField struct {
	name  string
	value any
}

// recordObject encodes a RECORD cell with its fields in schema order.
type recordObject []recordField

func (o recordObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		encoded, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
