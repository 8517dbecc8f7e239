package postgres

import (
	"database/sql"
	"strings"

	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

var Codec = query.Codec{Kind: columnKind}

var kinds = map[string]value.Kind{
	"BOOL":        value.KindBool,
	"BOOLEAN":     value.KindBool,
	"BYTEA":       value.KindBytea,
	"CHAR":        value.KindChar,
	"BPCHAR":      value.KindChar,
	"INT8":        value.KindInt8,
	"BIGINT":      value.KindInt8,
	"INT4":        value.KindInt4,
	"INTEGER":     value.KindInt4,
	"INT2":        value.KindInt2,
	"SMALLINT":    value.KindInt2,
	"TEXT":        value.KindText,
	"VARCHAR":     value.KindText,
	"NAME":        value.KindText,
	"CITEXT":      value.KindText,
	"OID":         value.KindOid,
	"FLOAT4":      value.KindFloat4,
	"REAL":        value.KindFloat4,
	"FLOAT8":      value.KindFloat8,
	"NUMERIC":     value.KindDecimal,
	"UUID":        value.KindUUID,
	"TIMESTAMP":   value.KindTimestamp,
	"TIMESTAMPTZ": value.KindTimestamptz,
	"DATE":        value.KindDate,
	"TIME":        value.KindTime,
	"JSON":        value.KindJSON,
	"JSONB":       value.KindJSON,
}

// KindOf maps a pgx database type name. Anything else is kept as raw text.
func KindOf(typeName string) value.Kind {
	if kind, ok := kinds[strings.ToUpper(typeName)]; ok {
		return kind
	}
	return value.KindUnknown
}

func columnKind(column *sql.ColumnType) value.Kind {
	return KindOf(column.DatabaseTypeName())
}
