// Package bigquery runs statements through the BigQuery REST jobs.query API.
package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

const (
	DefaultBaseURL = "https://bigquery.googleapis.com"
	DefaultTimeout = 120 * time.Second
	Scope          = "https://www.googleapis.com/auth/bigquery"
)

var pollInterval = time.Second

type Connector struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient replaces the service-account OAuth2 client.
	HTTPClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Connector {
	return &Connector{BaseURL: baseURL, Timeout: timeout}
}

func (c *Connector) Dialect() credential.Dialect {
	return credential.BigQuery
}

func (c *Connector) Connect(ctx context.Context, cred credential.Credential, _ int) (query.Conn, error) {
	bq, ok := cred.(credential.BigQueryCredential)
	if !ok {
		return nil, &query.ConnectError{Dialect: credential.BigQuery, Err: fmt.Errorf("credential %T cannot open a bigquery connection", cred)}
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		document, err := serviceAccountJSON(bq.CredentialsJSON)
		if err != nil {
			return nil, &query.ConnectError{Dialect: credential.BigQuery, Err: err}
		}
		creds, err := google.CredentialsFromJSON(ctx, document, Scope)
		if err != nil {
			return nil, &query.ConnectError{Dialect: credential.BigQuery, Err: fmt.Errorf("load service account: %w", err)}
		}
		httpClient = oauth2.NewClient(context.WithoutCancel(ctx), creds.TokenSource)
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout + 10*time.Second)
	return &Conn{client: client, projectID: bq.ProjectID, timeout: timeout}, nil
}

// serviceAccountJSON accepts the document inline or as a JSON string.
func serviceAccountJSON(raw json.RawMessage) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, fmt.Errorf("decode credentials_json: %w", err)
		}
		return []byte(inner), nil
	}
	if trimmed == "" {
		return nil, errors.New("credentials_json is empty")
	}
	return []byte(trimmed), nil
}

type Conn struct {
	client    *resty.Client
	projectID string
	timeout   time.Duration
}

type queryRequest struct {
	Query         string        `json:"query"`
	UseLegacySQL  bool          `json:"useLegacySql"`
	MaxResults    int           `json:"maxResults"`
	TimeoutMs     int64         `json:"timeoutMs"`
	FormatOptions formatOptions `json:"formatOptions"`
}

type formatOptions struct {
	UseInt64Timestamp bool `json:"useInt64Timestamp"`
}

type jobReference struct {
	JobID    string `json:"jobId"`
	Location string `json:"location"`
}

type queryResponse struct {
	JobComplete  bool         `json:"jobComplete"`
	JobReference jobReference `json:"jobReference"`
	Schema       tableSchema  `json:"schema"`
	Rows         []tableRow   `json:"rows"`
	PageToken    string       `json:"pageToken"`
	TotalRows    string       `json:"totalRows"`
}

type tableSchema struct {
	Fields []field `json:"fields"`
}

type field struct {
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Mode   string  `json:"mode"`
	Fields []field `json:"fields"`
}

type tableRow struct {
	F []tableCell `json:"f"`
}

type tableCell struct {
	V json.RawMessage `json:"v"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Conn) Execute(ctx context.Context, sqlText string, limit int) (value.ResultSet, error) {
	limit = query.EffectiveLimit(limit)
	request := queryRequest{
		Query:         sqlText,
		MaxResults:    limit + 1,
		TimeoutMs:     c.timeout.Milliseconds(),
		FormatOptions: formatOptions{UseInt64Timestamp: true},
	}

	var response queryResponse
	if err := c.do(ctx, c.client.R().
		SetPathParam("projectId", c.projectID).
		SetBody(request).
		SetResult(&response), http.MethodPost, "/bigquery/v2/projects/{projectId}/queries"); err != nil {
		return value.ResultSet{}, &query.ExecError{Dialect: credential.BigQuery, Statement: sqlText, Err: err}
	}

	schema, rows, pageToken := response.Schema, response.Rows, response.PageToken
	job, complete := response.JobReference, response.JobComplete
	for !complete {
		select {
		case <-ctx.Done():
			return value.ResultSet{}, &query.ExecError{Dialect: credential.BigQuery, Statement: sqlText, Err: ctx.Err()}
		case <-time.After(pollInterval):
		}
		next, err := c.results(ctx, job, "", limit+1)
		if err != nil {
			return value.ResultSet{}, &query.ExecError{Dialect: credential.BigQuery, Statement: sqlText, Err: err}
		}
		complete = next.JobComplete
		schema, rows, pageToken = next.Schema, next.Rows, next.PageToken
	}
	for pageToken != "" && len(rows) <= limit {
		next, err := c.results(ctx, job, pageToken, limit+1-len(rows))
		if err != nil {
			return value.ResultSet{}, &query.ExecError{Dialect: credential.BigQuery, Statement: sqlText, Err: err}
		}
		rows = append(rows, next.Rows...)
		pageToken = next.PageToken
	}

	return decodeResult(ctx, schema, rows, limit, pageToken != "")
}

func (c *Conn) results(ctx context.Context, job jobReference, pageToken string, maxResults int) (queryResponse, error) {
	var response queryResponse
	request := c.client.R().
		SetPathParam("projectId", c.projectID).
		SetPathParam("jobId", job.JobID).
		SetQueryParam("maxResults", strconv.Itoa(max(maxResults, 1))).
		SetQueryParam("timeoutMs", strconv.FormatInt(c.timeout.Milliseconds(), 10)).
		SetQueryParam("formatOptions.useInt64Timestamp", "true").
		SetResult(&response)
	if job.Location != "" {
		request.SetQueryParam("location", job.Location)
	}
	if pageToken != "" {
		request.SetQueryParam("pageToken", pageToken)
	}
	if err := c.do(ctx, request, http.MethodGet, "/bigquery/v2/projects/{projectId}/queries/{jobId}"); err != nil {
		return queryResponse{}, err
	}
	return response, nil
}

func (c *Conn) do(ctx context.Context, request *resty.Request, method, path string) error {
	var failure apiError
	response, err := request.SetContext(ctx).SetError(&failure).Execute(method, path)
	if err != nil {
		return err
	}
	if response.IsError() {
		if failure.Error.Message != "" {
			return errors.New(failure.Error.Message)
		}
		return fmt.Errorf("bigquery returned %s", response.Status())
	}
	return nil
}

// Close is a no-op; the REST client holds no connection state.
func (c *Conn) Close() error {
	return nil
}

func decodeResult(ctx context.Context, schema tableSchema, rows []tableRow, limit int, more bool) (value.ResultSet, error) {
	columns := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		columns[i] = f.Name
	}
	n := min(len(rows), limit)
	decoded, err := query.DecodeRows(ctx, n, func(i int) (*value.Row, error) {
		row := value.NewRow(len(columns))
		for j, f := range schema.Fields {
			var raw json.RawMessage
			if j < len(rows[i].F) {
				raw = rows[i].F[j].V
			}
			row.Set(f.Name, decodeCell(f, raw))
		}
		return row, nil
	})
	if err != nil {
		return value.ResultSet{}, err
	}
	return value.ResultSet{
		Columns:   columns,
		Rows:      decoded,
		Truncated: len(rows) > limit || more,
	}, nil
}
