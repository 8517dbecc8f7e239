// Package mysql connects to MySQL and MariaDB data sources.
package mysql

import (
	"context"
	"fmt"
	"net"
	"strconv"

	driver "github.com/go-sql-driver/mysql"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
)

type Connector struct {
	dialect credential.Dialect
}

// New returns the connector for mysql or mariadb.
func New(dialect credential.Dialect) *Connector {
	return &Connector{dialect: dialect}
}

func (c *Connector) Dialect() credential.Dialect {
	return c.dialect
}

func (c *Connector) Connect(ctx context.Context, cred credential.Credential, localPort int) (query.Conn, error) {
	cfg, err := Config(cred, localPort)
	if err != nil {
		return nil, &query.ConnectError{Dialect: c.dialect, Err: err}
	}
	connector, err := driver.NewConnector(cfg)
	if err != nil {
		return nil, &query.ConnectError{Dialect: c.dialect, Err: err}
	}
	db, err := query.OpenDB(ctx, c.dialect, connector)
	if err != nil {
		return nil, err
	}
	return &query.SQLConn{DB: db, Dialect: c.dialect, Codec: Codec}, nil
}

// Config builds the driver configuration. FormatDSN on the result escapes
// the credentials.
func Config(cred credential.Credential, localPort int) (*driver.Config, error) {
	my, ok := cred.(credential.MySQLCredential)
	if !ok {
		return nil, fmt.Errorf("credential %T cannot open a mysql connection", cred)
	}
	host, port := query.Endpoint(my.Host, my.Port, localPort)

	cfg := driver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.User = my.Username
	cfg.Passwd = my.Password
	cfg.DBName = my.DefaultDatabase()
	cfg.Timeout = query.DefaultConnectTimeout
	cfg.ParseTime = false
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg, nil
}
