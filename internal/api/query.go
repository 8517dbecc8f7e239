package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/metadata"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/router"
	"github.com/jaysatani-27/buster-ai-sub003/internal/safety"
	"github.com/jaysatani-27/buster-ai-sub003/internal/storage"
	"github.com/jaysatani-27/buster-ai-sub003/internal/tunnel"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
	// Typed returns each cell as {"type":..., "value":...} instead of a bare
	// JSON scalar.
	Typed bool `json:"typed"`
}

type queryResponse struct {
	Columns   []string          `json:"columns"`
	Rows      []json.RawMessage `json:"rows"`
	RowCount  int               `json:"row_count"`
	Truncated bool              `json:"truncated"`
	Stats     map[string]any    `json:"stats"`
}

type runSQLRequest struct {
	DataSourceID string `json:"data_source_id"`
	SQL          string `json:"sql"`
}

type runSQLResponse struct {
	Data         []json.RawMessage     `json:"data"`
	DataMetadata metadata.DataMetadata `json:"data_metadata"`
	Truncated    bool                  `json:"truncated"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	runStatement(deps, w, r, false)
}

func handleWrite(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	runStatement(deps, w, r, true)
}

func runStatement(deps Dependencies, w http.ResponseWriter, r *http.Request, write bool) {
	if deps.Router == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	organizationID, err := organizationFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "ORGANIZATION_REQUIRED", err.Error(), false, nil)
		return
	}
	roles := readRoles
	if write {
		roles = writeRoles
	}
	if err := requireRole(r, roles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if request.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must not be negative", false, nil)
		return
	}

	start := time.Now()
	result, err := deps.Router.Route(r.Context(), router.Request{
		DataSourceID:   strings.TrimSpace(r.PathValue("id")),
		SQL:            request.SQL,
		RowLimit:       request.RowLimit,
		Write:          write,
		OrganizationID: organizationID,
	})
	if err != nil {
		writeRouteError(deps, w, r, err)
		return
	}

	rows, err := encodeRows(result, request.Typed)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ENCODE_FAILED", "failed to encode query result", false, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:   nonNilColumns(result.Columns),
		Rows:      rows,
		RowCount:  result.Len(),
		Truncated: result.Truncated,
		Stats: map[string]any{
			"elapsed_ms": time.Since(start).Milliseconds(),
		},
	})
}

func handleRunSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Router == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}

	var request runSQLRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid run request body", false, map[string]any{"details": err.Error()})
		return
	}
	response, status, err := runModelingSQL(r.Context(), deps, userID, request)
	if err != nil {
		if status != 0 {
			writeError(r.Context(), w, status, "INVALID_REQUEST", err.Error(), false, nil)
			return
		}
		writeRouteError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// runModelingSQL is shared by the HTTP and WebSocket paths. A non-zero status
// marks a request validation failure.
func runModelingSQL(ctx context.Context, deps Dependencies, userID string, request runSQLRequest) (runSQLResponse, int, error) {
	request.DataSourceID = strings.TrimSpace(request.DataSourceID)
	if request.DataSourceID == "" {
		return runSQLResponse{}, http.StatusBadRequest, errors.New("data_source_id is required")
	}
	if strings.TrimSpace(request.SQL) == "" {
		return runSQLResponse{}, http.StatusBadRequest, errors.New("sql is required")
	}

	result, err := deps.Router.ModelingQueryEngine(ctx, request.DataSourceID, request.SQL, userID)
	if err != nil {
		return runSQLResponse{}, 0, err
	}
	rows, err := encodeRows(result, false)
	if err != nil {
		return runSQLResponse{}, http.StatusInternalServerError, err
	}
	return runSQLResponse{
		Data:         rows,
		DataMetadata: metadata.Describe(result),
		Truncated:    result.Truncated,
	}, 0, nil
}

func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Router == nil || deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}
	organizationID, err := organizationFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "ORGANIZATION_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, readRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	dataSourceID := strings.TrimSpace(r.PathValue("id"))
	result, err := deps.Router.Route(r.Context(), router.Request{
		DataSourceID:   dataSourceID,
		SQL:            request.SQL,
		RowLimit:       request.RowLimit,
		OrganizationID: organizationID,
	})
	if err != nil {
		writeRouteError(deps, w, r, err)
		return
	}

	key, err := storage.BuildExportPath(organizationID, dataSourceID, xid.New().String(), time.Now())
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXPORT_PATH", err.Error(), false, nil)
		return
	}
	exported, err := deps.Exporter.Export(r.Context(), key, result)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to export query result", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, exported)
}

func encodeRows(result value.ResultSet, typed bool) ([]json.RawMessage, error) {
	rows := make([]json.RawMessage, 0, result.Len())
	for _, row := range result.Rows {
		var (
			encoded []byte
			err     error
		)
		if typed {
			encoded, err = row.MarshalJSON()
		} else {
			encoded, err = row.MarshalPlainJSON()
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, encoded)
	}
	return rows, nil
}

func nonNilColumns(columns []string) []string {
	if columns == nil {
		return []string{}
	}
	return columns
}

// routeErrorStatus maps router and connector failures onto the error
// envelope.
func routeErrorStatus(err error) (int, string, bool) {
	var (
		rejection *safety.Rejection
		configErr *credential.ConfigError
		tunnelErr *tunnel.Error
		connErr   *query.ConnectError
		execErr   *query.ExecError
	)
	switch {
	case errors.As(err, &rejection):
		return http.StatusBadRequest, "STATEMENT_REJECTED", false
	case errors.Is(err, router.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", false
	case errors.Is(err, router.ErrDataSourceNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, "DATA_SOURCE_NOT_FOUND", false
	case errors.Is(err, router.ErrUnsupportedDialect):
		return http.StatusBadRequest, "UNSUPPORTED_DATA_SOURCE", false
	case errors.As(err, &configErr):
		return http.StatusUnprocessableEntity, "INVALID_CREDENTIAL", false
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "QUERY_TIMEOUT", true
	case errors.As(err, &tunnelErr):
		return http.StatusBadGateway, "TUNNEL_FAILED", true
	case errors.As(err, &connErr):
		return http.StatusBadGateway, "CONNECTION_FAILED", true
	case errors.As(err, &execErr):
		return http.StatusBadRequest, "QUERY_EXECUTION_FAILED", false
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", true
	}
}

func writeRouteError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	status, code, retryable := routeErrorStatus(err)
	if status >= http.StatusInternalServerError && deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), "query failed",
			slog.String("path", r.URL.Path),
			slog.String("error_code", code),
			slog.Any("error", err),
		)
	}
	extra := map[string]any{}
	var rejection *safety.Rejection
	if errors.As(err, &rejection) {
		extra["mode"] = string(rejection.Mode)
		extra["operation"] = rejection.Operation
	}
	var configErr *credential.ConfigError
	if errors.As(err, &configErr) && configErr.Field != "" {
		extra["field"] = configErr.Field
	}
	var tunnelErr *tunnel.Error
	if errors.As(err, &tunnelErr) {
		extra["stage"] = tunnelErr.Stage
	}
	if len(extra) == 0 {
		extra = nil
	}
	writeError(r.Context(), w, status, code, err.Error(), retryable, extra)
}
