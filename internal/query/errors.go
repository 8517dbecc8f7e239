package query

import (
	"fmt"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
)

// ConnectError wraps a failure to reach or authenticate to a data source.
type ConnectError struct {
	Dialect credential.Dialect
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Dialect, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ExecError carries the warehouse's own error text for a failed statement.
type ExecError struct {
	Dialect   credential.Dialect
	Statement string
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("error running query on %s: %v", e.Dialect, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func connectErr(dialect credential.Dialect, err error) error {
	return &ConnectError{Dialect: dialect, Err: err}
}

func execErr(dialect credential.Dialect, statement string, err error) error {
	return &ExecError{Dialect: dialect, Statement: statement, Err: err}
}
