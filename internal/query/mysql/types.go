package mysql

import (
	"database/sql"
	"strings"

	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

var Codec = query.Codec{Kind: columnKind, Convert: convert}

var kinds = map[string]value.Kind{
	"BIT":                value.KindBool,
	"BOOL":               value.KindBool,
	"BOOLEAN":            value.KindBool,
	"TINYINT":            value.KindInt2,
	"SMALLINT":           value.KindInt2,
	"YEAR":               value.KindInt2,
	"MEDIUMINT":          value.KindInt4,
	"INT":                value.KindInt4,
	"INTEGER":            value.KindInt4,
	"BIGINT":             value.KindInt8,
	"UNSIGNED TINYINT":   value.KindInt2,
	"UNSIGNED SMALLINT":  value.KindInt4,
	"UNSIGNED MEDIUMINT": value.KindInt4,
	"UNSIGNED INT":       value.KindInt8,
	"UNSIGNED BIGINT":    value.KindDecimal,
	"FLOAT":              value.KindFloat4,
	"DOUBLE":             value.KindFloat8,
	"DECIMAL":            value.KindDecimal,
	"CHAR":               value.KindChar,
	"VARCHAR":            value.KindText,
	"TINYTEXT":           value.KindText,
	"TEXT":               value.KindText,
	"MEDIUMTEXT":         value.KindText,
	"LONGTEXT":           value.KindText,
	"ENUM":               value.KindText,
	"SET":                value.KindText,
	"BINARY":             value.KindBytea,
	"VARBINARY":          value.KindBytea,
	"TINYBLOB":           value.KindBytea,
	"BLOB":               value.KindBytea,
	"MEDIUMBLOB":         value.KindBytea,
	"LONGBLOB":           value.KindBytea,
	"DATE":               value.KindDate,
	"DATETIME":           value.KindTimestamp,
	"TIMESTAMP":          value.KindTimestamp,
	"TIME":               value.KindTime,
	"JSON":               value.KindJSON,
	"NULL":               value.KindNull,
}

func KindOf(typeName string) value.Kind {
	if kind, ok := kinds[strings.ToUpper(typeName)]; ok {
		return kind
	}
	return value.KindUnknown
}

func columnKind(column *sql.ColumnType) value.Kind {
	return KindOf(column.DatabaseTypeName())
}

// convert reads BIT(1) as a single byte and zero dates as NULL.
func convert(kind value.Kind, raw any) value.Value {
	switch kind {
	case value.KindBool:
		if b, ok := raw.([]byte); ok && len(b) == 1 && b[0] <= 1 {
			return value.Bool(b[0] == 1)
		}
	case value.KindDate, value.KindTimestamp:
		if text := asText(raw); strings.HasPrefix(text, "0000-00-00") {
			return value.NullOf(kind)
		}
	}
	return query.Convert(kind, raw)
}

func asText(raw any) string {
	switch typed := raw.(type) {
	case []byte:
		return string(typed)
	case string:
		return typed
	}
	return ""
}
