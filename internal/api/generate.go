package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/nl2sql"
	"github.com/jaysatani-27/buster-ai-sub003/internal/sqltranslate"
)

const maxGenerateDatasets = 20

// datasetName accepts table, schema.table and database.schema.table.
var datasetName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*){0,2}$`)

type generateRequest struct {
	DataSourceID string   `json:"data_source_id"`
	Prompt       string   `json:"prompt"`
	Datasets     []string `json:"datasets"`
}

type generateResponse struct {
	SQL        string `json:"sql"`
	Dialect    string `json:"dialect"`
	Transpiled bool   `json:"transpiled"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}

func handleGenerateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryTranslator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if deps.Credentials == nil || deps.Router == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
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

	var request generateRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid generate request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}
	if len(request.Datasets) > maxGenerateDatasets {
		writeError(r.Context(), w, http.StatusBadRequest, "TOO_MANY_DATASETS", fmt.Sprintf("at most %d datasets may be sampled", maxGenerateDatasets), false, nil)
		return
	}
	for _, name := range request.Datasets {
		if !datasetName.MatchString(name) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATASET", "dataset names must be plain identifiers", false, map[string]any{"dataset": name})
			return
		}
	}

	dataSourceID := strings.TrimSpace(request.DataSourceID)
	source, _, err := deps.Credentials.ResolveDataSource(r.Context(), dataSourceID)
	if err == nil && source.OrganizationID != organizationID {
		err = catalog.ErrNotFound
	}
	if err != nil {
		writeRouteError(deps, w, r, err)
		return
	}

	datasets := sampleDatasets(r.Context(), deps, source, request.Datasets)

	// With a transpiler the model writes PostgreSQL and the transpiler moves
	// it to the target dialect.
	requestDialect := source.Type
	if deps.Transpiler != nil {
		requestDialect = credential.Postgres
	}
	result, err := deps.QueryTranslator.Translate(r.Context(), nl2sql.Request{
		OrganizationID:  organizationID,
		NaturalLanguage: request.Prompt,
		Dialect:         requestDialect,
		Datasets:        datasets,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate query", true, map[string]any{"details": err.Error()})
		return
	}

	sql := result.SQL
	if deps.Transpiler != nil {
		sql = sqltranslate.OrOriginal(r.Context(), deps.Transpiler, deps.Logger, sql, source.Type)
	}
	writeJSON(w, http.StatusOK, generateResponse{
		SQL:        sql,
		Dialect:    string(source.Type),
		Transpiled: sql != result.SQL,
		Provider:   result.Provider,
		Model:      result.Model,
	})
}

// sampleDatasets previews each dataset; a dataset that cannot be sampled is
// still passed to the model by name.
func sampleDatasets(ctx context.Context, deps Dependencies, source catalog.DataSource, names []string) []nl2sql.DatasetContext {
	contexts := make([]nl2sql.DatasetContext, 0, len(names))
	for _, name := range names {
		result, err := deps.Router.SampleQuery(ctx, source.ID, sampleStatement(source.Type, name, schemaSampleRows(deps)))
		if err != nil {
			if deps.Logger != nil && !errors.Is(err, context.Canceled) {
				deps.Logger.WarnContext(ctx, "dataset sample failed", "dataset", name, "error", err.Error())
			}
			contexts = append(contexts, nl2sql.DatasetContext{Name: name})
			continue
		}
		contexts = append(contexts, nl2sql.DatasetFromResult(name, result))
	}
	return contexts
}

func sampleStatement(dialect credential.Dialect, name string, rows int) string {
	limit := strconv.Itoa(rows)
	if dialect == credential.SQLServer {
		return "SELECT TOP " + limit + " * FROM " + name
	}
	return "SELECT * FROM " + name + " LIMIT " + limit
}

func schemaSampleRows(deps Dependencies) int {
	if deps.SchemaSamples > 0 {
		return deps.SchemaSamples
	}
	return 5
}
