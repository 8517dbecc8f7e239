// Package databricks runs statements through the Databricks SQL Statement
// Execution API. Results come back inline as arrays of strings.
package databricks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

const (
	DefaultTimeout = 300 * time.Second
	waitTimeout    = "50s"
)

var pollInterval = time.Second

type Connector struct {
	Timeout time.Duration
	// Scheme is prepended to hosts given without one; defaults to https.
	Scheme     string
	HTTPClient *http.Client
}

func New(timeout time.Duration) *Connector {
	return &Connector{Timeout: timeout}
}

func (c *Connector) Dialect() credential.Dialect {
	return credential.Databricks
}

func (c *Connector) Connect(_ context.Context, cred credential.Credential, _ int) (query.Conn, error) {
	dbx, ok := cred.(credential.DatabricksCredential)
	if !ok {
		return nil, &query.ConnectError{Dialect: credential.Databricks, Err: fmt.Errorf("credential %T cannot open a databricks connection", cred)}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New()
	if c.HTTPClient != nil {
		client = resty.NewWithClient(c.HTTPClient)
	}
	client.SetBaseURL(c.baseURL(dbx.Host)).
		SetAuthToken(dbx.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Conn{client: client, warehouseID: dbx.WarehouseID, catalog: dbx.CatalogName, timeout: timeout}, nil
}

func (c *Connector) baseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	scheme := c.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + host
}

type Conn struct {
	client      *resty.Client
	warehouseID string
	catalog     string
	timeout     time.Duration
}

type statementRequest struct {
	WarehouseID   string `json:"warehouse_id"`
	Catalog       string `json:"catalog,omitempty"`
	Statement     string `json:"statement"`
	WaitTimeout   string `json:"wait_timeout"`
	OnWaitTimeout string `json:"on_wait_timeout"`
	Disposition   string `json:"disposition"`
	Format        string `json:"format"`
	RowLimit      int    `json:"row_limit,omitempty"`
}

type statementResponse struct {
	StatementID string      `json:"statement_id"`
	Status      status      `json:"status"`
	Manifest    manifest    `json:"manifest"`
	Result      resultChunk `json:"result"`
}

type status struct {
	State string `json:"state"`
	Error *struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	} `json:"error"`
}

type manifest struct {
	Format    string `json:"format"`
	Schema    schema `json:"schema"`
	Truncated bool   `json:"truncated"`
}

type schema struct {
	ColumnCount int      `json:"column_count"`
	Columns     []column `json:"columns"`
}

type column struct {
	Name     string `json:"name"`
	TypeName string `json:"type_name"`
	TypeText string `json:"type_text"`
	Position int    `json:"position"`
}

type resultChunk struct {
	RowCount              int         `json:"row_count"`
	RowOffset             int         `json:"row_offset"`
	DataArray             [][]*string `json:"data_array"`
	NextChunkInternalLink string      `json:"next_chunk_internal_link"`
}

type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (c *Conn) Execute(ctx context.Context, sqlText string, limit int) (value.ResultSet, error) {
	limit = query.EffectiveLimit(limit)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fail := func(err error) (value.ResultSet, error) {
		return value.ResultSet{}, &query.ExecError{Dialect: credential.Databricks, Statement: sqlText, Err: err}
	}

	var response statementResponse
	if err := c.do(ctx, c.client.R().SetBody(statementRequest{
		WarehouseID:   c.warehouseID,
		Catalog:       c.catalog,
		Statement:     sqlText,
		WaitTimeout:   waitTimeout,
		OnWaitTimeout: "CONTINUE",
		Disposition:   "INLINE",
		Format:        "JSON_ARRAY",
		RowLimit:      limit + 1,
	}).SetResult(&response), http.MethodPost, "/api/2.0/sql/statements/"); err != nil {
		return fail(err)
	}

	for response.Status.State == "PENDING" || response.Status.State == "RUNNING" {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-time.After(pollInterval):
		}
		id := response.StatementID
		response = statementResponse{}
		if err := c.do(ctx, c.client.R().SetPathParam("id", id).SetResult(&response), http.MethodGet, "/api/2.0/sql/statements/{id}"); err != nil {
			return fail(err)
		}
	}
	if response.Status.State != "SUCCEEDED" {
		return fail(stateError(response.Status))
	}

	data := response.Result.DataArray
	next := response.Result.NextChunkInternalLink
	for next != "" && len(data) <= limit {
		var chunk resultChunk
		if err := c.do(ctx, c.client.R().SetResult(&chunk), http.MethodGet, next); err != nil {
			return fail(err)
		}
		data = append(data, chunk.DataArray...)
		next = chunk.NextChunkInternalLink
	}

	result, err := decode(ctx, response.Manifest.Schema.Columns, data, limit)
	if err != nil {
		return fail(err)
	}
	result.Truncated = result.Truncated || next != "" || response.Manifest.Truncated
	return result, nil
}

func stateError(s status) error {
	if s.Error != nil && s.Error.Message != "" {
		return errors.New(s.Error.Message)
	}
	return fmt.Errorf("statement finished in state %s", s.State)
}

func (c *Conn) do(ctx context.Context, request *resty.Request, method, path string) error {
	var failure apiError
	response, err := request.SetContext(ctx).SetError(&failure).Execute(method, path)
	if err != nil {
		return err
	}
	if response.IsError() {
		if failure.Message != "" {
			return errors.New(failure.Message)
		}
		return fmt.Errorf("databricks returned %s", response.Status())
	}
	return nil
}

// Close is a no-op; each statement is an independent HTTP request.
func (c *Conn) Close() error {
	return nil
}

func decode(ctx context.Context, columns []column, data [][]*string, limit int) (value.ResultSet, error) {
	names := make([]string, len(columns))
	kinds := make([]value.Kind, len(columns))
	for i, col := range columns {
		names[i] = col.Name
		kinds[i] = KindOf(col.TypeName)
	}
	n := min(len(data), limit)
	rows, err := query.DecodeRows(ctx, n, func(i int) (*value.Row, error) {
		row := value.NewRow(len(names))
		for j, name := range names {
			var cell *string
			if j < len(data[i]) {
				cell = data[i][j]
			}
			row.Set(name, decodeCell(kinds[j], cell))
		}
		return row, nil
	})
	if err != nil {
		return value.ResultSet{}, err
	}
	return value.ResultSet{Columns: names, Rows: rows, Truncated: len(data) > limit}, nil
}
