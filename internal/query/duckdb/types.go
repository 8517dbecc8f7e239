package duckdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"
	duckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

var Codec = query.Codec{Kind: columnKind, Convert: convert}

var kinds = map[string]value.Kind{
	"BOOLEAN":      value.KindBool,
	"TINYINT":      value.KindInt2,
	"SMALLINT":     value.KindInt2,
	"UTINYINT":     value.KindInt2,
	"INTEGER":      value.KindInt4,
	"USMALLINT":    value.KindInt4,
	"BIGINT":       value.KindInt8,
	"UINTEGER":     value.KindInt8,
	"UBIGINT":      value.KindDecimal,
	"HUGEINT":      value.KindDecimal,
	"UHUGEINT":     value.KindDecimal,
	"FLOAT":        value.KindFloat4,
	"DOUBLE":       value.KindFloat8,
	"DECIMAL":      value.KindDecimal,
	"VARCHAR":      value.KindText,
	"BLOB":         value.KindBytea,
	"UUID":         value.KindUUID,
	"DATE":         value.KindDate,
	"TIME":         value.KindTime,
	"TIMESTAMP":    value.KindTimestamp,
	"TIMESTAMP_S":  value.KindTimestamp,
	"TIMESTAMP_MS": value.KindTimestamp,
	"TIMESTAMP_NS": value.KindTimestamp,
	"TIMESTAMPTZ":  value.KindTimestamptz,
	"JSON":         value.KindJSON,
	"LIST":         value.KindJSON,
	"STRUCT":       value.KindJSON,
	"MAP":          value.KindJSON,
}

// KindOf maps a DuckDB type name. Parameterised and array types are reduced
// to their base name first.
func KindOf(typeName string) value.Kind {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if strings.HasSuffix(name, "]") {
		return value.KindJSON
	}
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	if kind, ok := kinds[name]; ok {
		return kind
	}
	return value.KindUnknown
}

func columnKind(column *sql.ColumnType) value.Kind {
	return KindOf(column.DatabaseTypeName())
}

func convert(kind value.Kind, raw any) value.Value {
	switch typed := raw.(type) {
	case duckdb.Decimal:
		if typed.Value == nil {
			return value.NullOf(kind)
		}
		return value.Decimal(apd.NewWithBigInt(typed.Value, -int32(typed.Scale)))
	case duckdb.UUID:
		return value.UUID(uuid.UUID(typed))
	case *duckdb.UUID:
		if typed == nil {
			return value.NullOf(kind)
		}
		return value.UUID(uuid.UUID(*typed))
	case duckdb.Map:
		return jsonMap(kind, typed)
	case duckdb.Interval:
		return value.Unknown(fmt.Sprintf("%d months %d days %d us", typed.Months, typed.Days, typed.Micros))
	}
	return query.Convert(kind, raw)
}

// jsonMap renders a MAP with stringified keys; JSON objects only allow
// string keys.
func jsonMap(kind value.Kind, m duckdb.Map) value.Value {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[fmt.Sprint(k)] = v
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return value.NullOf(kind)
	}
	return value.JSON(encoded)
}
