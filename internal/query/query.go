// Package query defines the connector contracts shared by every dialect and
// the database/sql plumbing the SQL-driver dialects reuse.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

const (
	DefaultRowLimit  = 5000
	ModelingRowLimit = 25
	SampleRowLimit   = 25

	DefaultConnectTimeout = 5 * time.Second
)

// Connector opens one connection for one query. localPort > 0 means the
// data source is reached through a tunnel listening on 127.0.0.1:localPort.
type Connector interface {
	Dialect() credential.Dialect
	Connect(ctx context.Context, cred credential.Credential, localPort int) (Conn, error)
}

// Conn executes statements against a single connection. Execute returns at
// most limit rows; limit <= 0 means DefaultRowLimit.
type Conn interface {
	Execute(ctx context.Context, sql string, limit int) (value.ResultSet, error)
	Close() error
}

// EffectiveLimit picks the row cap for a request.
func EffectiveLimit(requested int) int {
	if requested <= 0 {
		return DefaultRowLimit
	}
	return requested
}

// Endpoint returns the host and port a connector should dial.
func Endpoint(host string, port int, localPort int) (string, int) {
	if localPort > 0 {
		return "127.0.0.1", localPort
	}
	return host, port
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
