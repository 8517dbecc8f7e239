package snowflake

import (
	"database/sql"
	"strings"

	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

// Codec lower-cases column names; Snowflake reports unquoted identifiers in
// upper case.
var Codec = query.Codec{Kind: columnKind, Rename: strings.ToLower}

var kinds = map[string]value.Kind{
	"BOOLEAN":       value.KindBool,
	"REAL":          value.KindFloat8,
	"FLOAT":         value.KindFloat8,
	"TEXT":          value.KindText,
	"CHAR":          value.KindText,
	"VARCHAR":       value.KindText,
	"BINARY":        value.KindBytea,
	"DATE":          value.KindDate,
	"TIME":          value.KindTime,
	"TIMESTAMP_NTZ": value.KindTimestamp,
	"TIMESTAMP_LTZ": value.KindTimestamptz,
	"TIMESTAMP_TZ":  value.KindTimestamptz,
	"VARIANT":       value.KindJSON,
	"OBJECT":        value.KindJSON,
	"ARRAY":         value.KindJSON,
}

// KindOf maps a Snowflake type name. FIXED is an integer only when its
// scale is zero.
func KindOf(typeName string, scale int64) value.Kind {
	name := strings.ToUpper(typeName)
	if name == "FIXED" || name == "NUMBER" || name == "DECIMAL" {
		if scale == 0 {
			return value.KindInt8
		}
		return value.KindDecimal
	}
	if kind, ok := kinds[name]; ok {
		return kind
	}
	return value.KindUnknown
}

func columnKind(column *sql.ColumnType) value.Kind {
	_, scale, ok := column.DecimalSize()
	if !ok {
		scale = 0
	}
	return KindOf(column.DatabaseTypeName(), scale)
}
