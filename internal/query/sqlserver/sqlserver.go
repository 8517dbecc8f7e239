// Package sqlserver connects to Microsoft SQL Server data sources.
package sqlserver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
)

type Connector struct{}

func New() *Connector {
	return &Connector{}
}

func (c *Connector) Dialect() credential.Dialect {
	return credential.SQLServer
}

func (c *Connector) Connect(ctx context.Context, cred credential.Credential, localPort int) (query.Conn, error) {
	dsn, err := DSN(cred, localPort)
	if err != nil {
		return nil, &query.ConnectError{Dialect: credential.SQLServer, Err: err}
	}
	connector, err := mssql.NewConnector(dsn)
	if err != nil {
		return nil, &query.ConnectError{Dialect: credential.SQLServer, Err: err}
	}
	db, err := query.OpenDB(ctx, credential.SQLServer, connector)
	if err != nil {
		return nil, err
	}
	return &query.SQLConn{DB: db, Dialect: credential.SQLServer, Codec: Codec}, nil
}

// DSN builds a sqlserver:// URL; user info and parameters are escaped.
func DSN(cred credential.Credential, localPort int) (string, error) {
	ms, ok := cred.(credential.SQLServerCredential)
	if !ok {
		return "", fmt.Errorf("credential %T cannot open a sqlserver connection", cred)
	}
	host, port := query.Endpoint(ms.Host, ms.Port, localPort)

	params := url.Values{}
	params.Set("database", ms.Database)
	params.Set("dial timeout", strconv.Itoa(int(query.DefaultConnectTimeout.Seconds())))
	params.Set("encrypt", "true")
	params.Set("TrustServerCertificate", "true")
	params.Set("app name", "buster")
	dsn := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(ms.Username, ms.Password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		RawQuery: params.Encode(),
	}
	return dsn.String(), nil
}
