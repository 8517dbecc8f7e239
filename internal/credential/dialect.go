package credential

import (
	"fmt"
	"strings"
)

// Dialect is the data source type tag stored with every data source.
type Dialect string

const (
	Postgres   Dialect = "postgres"
	Supabase   Dialect = "supabase"
	MySQL      Dialect = "mysql"
	MariaDB    Dialect = "mariadb"
	Redshift   Dialect = "redshift"
	Snowflake  Dialect = "snowflake"
	BigQuery   Dialect = "bigquery"
	Databricks Dialect = "databricks"
	SQLServer  Dialect = "sqlserver"
	DuckDB     Dialect = "duckdb"
)

var dialects = []Dialect{Postgres, Supabase, MySQL, MariaDB, Redshift, Snowflake, BigQuery, Databricks, SQLServer, DuckDB}

func ParseDialect(raw string) (Dialect, error) {
	normalized := Dialect(strings.ToLower(strings.TrimSpace(raw)))
	for _, candidate := range dialects {
		if candidate == normalized {
			return candidate, nil
		}
	}
	return "", &ConfigError{Field: "type", Reason: fmt.Sprintf("unsupported data source type %q", raw)}
}

// Dialects lists every supported tag.
func Dialects() []Dialect {
	return append([]Dialect(nil), dialects...)
}

// family is the credential shape shared by a group of dialects.
func (d Dialect) family() Dialect {
	switch d {
	case Supabase:
		return Postgres
	case MariaDB:
		return MySQL
	default:
		return d
	}
}
