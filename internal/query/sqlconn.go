package query

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

// Codec maps a dialect's reported column types to kinds and converts the
// scanned driver values. A nil Convert falls back to the package Convert.
type Codec struct {
	Kind    func(column *sql.ColumnType) value.Kind
	Convert func(kind value.Kind, raw any) value.Value
	// Rename, when set, maps the reported column name.
	Rename func(name string) string
}

func (c Codec) convert(kind value.Kind, raw any) value.Value {
	if c.Convert != nil {
		return c.Convert(kind, raw)
	}
	return Convert(kind, raw)
}

// OpenDB wraps a driver connector in a single-connection handle and pings it
// within DefaultConnectTimeout.
func OpenDB(ctx context.Context, dialect credential.Dialect, connector driver.Connector) (*sql.DB, error) {
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, connectErr(dialect, err)
	}
	return db, nil
}

// OpenDSN is OpenDB for drivers that are only reachable by name.
func OpenDSN(ctx context.Context, dialect credential.Dialect, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, connectErr(dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, connectErr(dialect, err)
	}
	return db, nil
}

// SQLConn is a Conn over a database/sql handle.
type SQLConn struct {
	DB      *sql.DB
	Dialect credential.Dialect
	Codec   Codec
	// Rewrite adjusts the statement before execution, e.g. to push the limit down.
	Rewrite func(sql string, limit int) string
}

func (c *SQLConn) Execute(ctx context.Context, sqlText string, limit int) (value.ResultSet, error) {
	limit = EffectiveLimit(limit)
	statement := sqlText
	if c.Rewrite != nil {
		statement = c.Rewrite(sqlText, limit)
	}
	rows, err := c.DB.QueryContext(ctx, statement)
	if err != nil {
		return value.ResultSet{}, execErr(c.Dialect, sqlText, err)
	}
	defer func() { _ = rows.Close() }()

	result, err := ReadRows(rows, limit, c.Codec)
	if err != nil {
		return value.ResultSet{}, execErr(c.Dialect, sqlText, err)
	}
	return result, nil
}

func (c *SQLConn) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// ReadRows decodes rows in driver order, keeping at most limit rows. One
// extra row is read to report truncation.
func ReadRows(rows *sql.Rows, limit int, codec Codec) (value.ResultSet, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return value.ResultSet{}, fmt.Errorf("query columns: %w", err)
	}
	columns := make([]string, len(columnTypes))
	kinds := make([]value.Kind, len(columnTypes))
	for i, columnType := range columnTypes {
		columns[i] = columnType.Name()
		if codec.Rename != nil {
			columns[i] = codec.Rename(columns[i])
		}
		kinds[i] = codec.Kind(columnType)
	}

	builder := value.NewBuilder(columns, limit)
	raw := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range raw {
		targets[i] = &raw[i]
	}
	for rows.Next() {
		if builder.Full() {
			builder.MarkTruncated()
			break
		}
		if err := rows.Scan(targets...); err != nil {
			return value.ResultSet{}, fmt.Errorf("scan row: %w", err)
		}
		row := value.NewRow(len(columns))
		for i, column := range columns {
			row.Set(column, codec.convert(kinds[i], raw[i]))
		}
		builder.Add(row)
	}
	if err := rows.Err(); err != nil {
		return value.ResultSet{}, fmt.Errorf("iterate rows: %w", err)
	}
	return builder.Result(), nil
}
