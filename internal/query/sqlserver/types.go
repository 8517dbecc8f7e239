package sqlserver

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

var Codec = query.Codec{Kind: columnKind, Convert: convert}

var kinds = map[string]value.Kind{
	"BIT":              value.KindBool,
	"TINYINT":          value.KindInt2,
	"SMALLINT":         value.KindInt2,
	"INT":              value.KindInt4,
	"BIGINT":           value.KindInt8,
	"REAL":             value.KindFloat4,
	"FLOAT":            value.KindFloat8,
	"DECIMAL":          value.KindDecimal,
	"NUMERIC":          value.KindDecimal,
	"MONEY":            value.KindDecimal,
	"SMALLMONEY":       value.KindDecimal,
	"CHAR":             value.KindChar,
	"NCHAR":            value.KindChar,
	"VARCHAR":          value.KindText,
	"NVARCHAR":         value.KindText,
	"TEXT":             value.KindText,
	"NTEXT":            value.KindText,
	"XML":              value.KindText,
	"BINARY":           value.KindBytea,
	"VARBINARY":        value.KindBytea,
	"IMAGE":            value.KindBytea,
	"UNIQUEIDENTIFIER": value.KindUUID,
	"DATE":             value.KindDate,
	"TIME":             value.KindTime,
	"DATETIME":         value.KindTimestamp,
	"DATETIME2":        value.KindTimestamp,
	"SMALLDATETIME":    value.KindTimestamp,
	"DATETIMEOFFSET":   value.KindTimestamptz,
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

// convert reorders uniqueidentifier bytes, which the server sends with the
// first three groups little-endian.
func convert(kind value.Kind, raw any) value.Value {
	if kind == value.KindUUID {
		if b, ok := raw.([]byte); ok && len(b) == 16 {
			var id mssql.UniqueIdentifier
			if err := id.Scan(b); err != nil {
				return value.NullOf(kind)
			}
			return value.UUID(uuid.UUID(id))
		}
	}
	return query.Convert(kind, raw)
}
