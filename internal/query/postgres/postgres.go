// Package postgres connects to Postgres, Supabase and Redshift data sources
// through pgx.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
)

type Connector struct {
	dialect credential.Dialect
}

// New returns the connector for postgres, supabase or redshift.
func New(dialect credential.Dialect) *Connector {
	return &Connector{dialect: dialect}
}

func (c *Connector) Dialect() credential.Dialect {
	return c.dialect
}

func (c *Connector) Connect(ctx context.Context, cred credential.Credential, localPort int) (query.Conn, error) {
	dsn, err := DSN(c.dialect, cred, localPort)
	if err != nil {
		return nil, &query.ConnectError{Dialect: c.dialect, Err: err}
	}
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, &query.ConnectError{Dialect: c.dialect, Err: fmt.Errorf("parse connection config: %w", err)}
	}
	config.ConnectTimeout = query.DefaultConnectTimeout
	if c.dialect != credential.Postgres {
		// Redshift and the Supabase pooler reject named prepared statements.
		config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	db, err := query.OpenDB(ctx, c.dialect, stdlib.GetConnector(*config))
	if err != nil {
		return nil, err
	}
	return &query.SQLConn{DB: db, Dialect: c.dialect, Codec: Codec}, nil
}

// DSN builds the connection URL with user info percent-encoded.
func DSN(dialect credential.Dialect, cred credential.Credential, localPort int) (string, error) {
	var (
		host, username, password, database string
		port                               int
		schemas                            []string
	)
	sslMode := "prefer"
	switch typed := cred.(type) {
	case credential.PostgresCredential:
		host, port, username, password, database, schemas = typed.Host, typed.Port, typed.Username, typed.Password, typed.Database, typed.Schemas
	case credential.RedshiftCredential:
		host, port, username, password, database, schemas = typed.Host, typed.Port, typed.Username, typed.Password, typed.Database, typed.Schemas
		sslMode = "require"
	default:
		return "", fmt.Errorf("credential %T cannot open a %s connection", cred, dialect)
	}
	if database == "" {
		database = "postgres"
	}
	host, port = query.Endpoint(host, port, localPort)

	params := url.Values{}
	params.Set("sslmode", sslMode)
	params.Set("application_name", "buster")
	if len(schemas) > 0 {
		params.Set("search_path", strings.Join(schemas, ","))
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(username, password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + database,
		RawQuery: params.Encode(),
	}
	return dsn.String(), nil
}
