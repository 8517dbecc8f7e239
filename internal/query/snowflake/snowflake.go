// Package snowflake connects to Snowflake warehouses through gosnowflake.
package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
)

type Connector struct{}

func New() *Connector {
	return &Connector{}
}

func (c *Connector) Dialect() credential.Dialect {
	return credential.Snowflake
}

// Connect ignores localPort; Snowflake is never reached through a tunnel.
func (c *Connector) Connect(ctx context.Context, cred credential.Credential, _ int) (query.Conn, error) {
	cfg, err := Config(cred)
	if err != nil {
		return nil, &query.ConnectError{Dialect: credential.Snowflake, Err: err}
	}
	connector := gosnowflake.NewConnector(gosnowflake.SnowflakeDriver{}, *cfg)
	db, err := query.OpenDB(ctx, credential.Snowflake, connector)
	if err != nil {
		return nil, err
	}
	return newConn(db), nil
}

func newConn(db *sql.DB) *query.SQLConn {
	return &query.SQLConn{
		DB:      db,
		Dialect: credential.Snowflake,
		Codec:   Codec,
		Rewrite: LimitStatement,
	}
}

func Config(cred credential.Credential) (*gosnowflake.Config, error) {
	sf, ok := cred.(credential.SnowflakeCredential)
	if !ok {
		return nil, fmt.Errorf("credential %T cannot open a snowflake connection", cred)
	}
	cfg := &gosnowflake.Config{
		Account:      sf.AccountID,
		User:         sf.Username,
		Password:     sf.Password,
		Database:     sf.DatabaseID,
		Warehouse:    sf.WarehouseID,
		Role:         sf.Role,
		LoginTimeout: query.DefaultConnectTimeout,
		Application:  "buster",
	}
	if len(sf.Schemas) > 0 {
		cfg.Schema = sf.Schemas[0]
	}
	return cfg, nil
}

// DSN renders the connection string for cred, mainly for diagnostics.
func DSN(cred credential.Credential) (string, error) {
	cfg, err := Config(cred)
	if err != nil {
		return "", err
	}
	return gosnowflake.DSN(cfg)
}

// LimitStatement pushes the row cap into statements that carry no limit of
// their own. One extra row is fetched so truncation can be reported.
func LimitStatement(sqlText string, limit int) string {
	stripped := query.StripTrailingSemicolons(sqlText)
	if strings.Contains(strings.ToLower(stripped), "limit") {
		return stripped
	}
	return fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", stripped, limit+1)
}
