package databricks

import (
	"encoding/base64"
	"strings"

	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

var kinds = map[string]value.Kind{
	"BOOLEAN":       value.KindBool,
	"BYTE":          value.KindInt2,
	"SHORT":         value.KindInt2,
	"INT":           value.KindInt4,
	"LONG":          value.KindInt8,
	"FLOAT":         value.KindFloat4,
	"DOUBLE":        value.KindFloat8,
	"DECIMAL":       value.KindDecimal,
	"STRING":        value.KindText,
	"CHAR":          value.KindChar,
	"BINARY":        value.KindBytea,
	"DATE":          value.KindDate,
	"TIMESTAMP":     value.KindTimestamptz,
	"TIMESTAMP_NTZ": value.KindTimestamp,
	"ARRAY":         value.KindJSON,
	"MAP":           value.KindJSON,
	"STRUCT":        value.KindJSON,
	"NULL":          value.KindNull,
}

func KindOf(typeName string) value.Kind {
	if kind, ok := kinds[strings.ToUpper(typeName)]; ok {
		return kind
	}
	return value.KindUnknown
}

// decodeCell parses one string cell; a nil cell is the typed NULL.
func decodeCell(kind value.Kind, cell *string) value.Value {
	if cell == nil {
		return value.NullOf(kind)
	}
	switch kind {
	case value.KindUnknown:
		return value.Unknown(*cell)
	case value.KindBytea:
		// JSON_ARRAY results carry BINARY columns base64 encoded.
		decoded, err := base64.StdEncoding.DecodeString(*cell)
		if err != nil {
			return value.NullOf(kind)
		}
		return value.Bytea(decoded)
	}
	return query.Convert(kind, *cell)
}
