package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
)

type createDataSourceRequest struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Env        string          `json:"env"`
	Credential json.RawMessage `json:"credential"`
	// SkipTest stores the data source without opening a connection first.
	SkipTest bool `json:"skip_test"`
}

type dataSourceResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	Env            string    `json:"env"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toDataSourceResponse(source catalog.DataSource) dataSourceResponse {
	return dataSourceResponse{
		ID:             source.ID,
		Name:           source.Name,
		Type:           string(source.Type),
		OrganizationID: source.OrganizationID,
		Env:            source.Env,
		CreatedBy:      source.CreatedBy,
		CreatedAt:      source.CreatedAt,
		UpdatedAt:      source.UpdatedAt,
	}
}

func handleCreateDataSource(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.DataSources == nil || deps.Router == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATA_SOURCES_NOT_CONFIGURED", "data source dependencies are not configured", false, nil)
		return
	}
	organizationID, err := organizationFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "ORGANIZATION_REQUIRED", err.Error(), false, nil)
		return
	}
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "USER_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, adminRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request createDataSourceRequest
	if err := decodeJSONBody(w, r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid data source request body", false, map[string]any{"details": err.Error()})
		return
	}
	request.Name = strings.TrimSpace(request.Name)
	if request.Name == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "NAME_REQUIRED", "name is required", false, nil)
		return
	}
	if len(request.Credential) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "CREDENTIAL_REQUIRED", "credential is required", false, nil)
		return
	}
	dialect, err := credential.ParseDialect(request.Type)
	if err != nil {
		writeCredentialError(w, r, err)
		return
	}
	cred, err := credential.Decode(dialect, request.Credential)
	if err != nil {
		writeCredentialError(w, r, err)
		return
	}
	if !request.SkipTest {
		if err := deps.Router.TestConnection(r.Context(), dialect, cred); err != nil {
			writeRouteError(deps, w, r, err)
			return
		}
	}
	secret, err := credential.Encode(dialect, cred)
	if err != nil {
		writeCredentialError(w, r, err)
		return
	}

	env := strings.TrimSpace(request.Env)
	if env == "" {
		env = "dev"
	}
	source, err := deps.DataSources.CreateDataSource(r.Context(), catalog.CreateDataSourceInput{
		Name:           request.Name,
		Type:           dialect,
		OrganizationID: organizationID,
		Env:            env,
		CreatedBy:      userID,
		Secret:         secret,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrAlreadyExists) {
			writeError(r.Context(), w, http.StatusConflict, "DATA_SOURCE_EXISTS", "data source already exists", false, map[string]any{"name": request.Name, "env": env})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to create data source", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, toDataSourceResponse(source))
}

func handleListDataSources(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.DataSources == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATA_SOURCES_NOT_CONFIGURED", "data source dependencies are not configured", false, nil)
		return
	}
	organizationID, err := organizationFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "ORGANIZATION_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, listRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sources, err := deps.DataSources.ListDataSources(r.Context(), organizationID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list data sources", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]dataSourceResponse, 0, len(sources))
	for _, source := range sources {
		items = append(items, toDataSourceResponse(source))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": organizationID,
		"data_sources":    items,
	})
}

func handleDeleteDataSource(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.DataSources == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATA_SOURCES_NOT_CONFIGURED", "data source dependencies are not configured", false, nil)
		return
	}
	organizationID, err := organizationFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "ORGANIZATION_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, adminRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	deleted, err := deps.DataSources.DeleteDataSource(r.Context(), organizationID, id)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to delete data source", true, map[string]any{"details": err.Error()})
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "DATA_SOURCE_NOT_FOUND", "data source not found", false, map[string]any{"data_source_id": id})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "data_source_id": id})
}

func handleTestDataSource(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Credentials == nil || deps.Router == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DATA_SOURCES_NOT_CONFIGURED", "data source dependencies are not configured", false, nil)
		return
	}
	organizationID, err := organizationFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "ORGANIZATION_REQUIRED", err.Error(), false, nil)
		return
	}
	if err := requireRole(r, adminRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	source, cred, err := deps.Credentials.ResolveDataSource(r.Context(), id)
	if err == nil && source.OrganizationID != organizationID {
		err = catalog.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATA_SOURCE_NOT_FOUND", "data source not found", false, map[string]any{"data_source_id": id})
			return
		}
		writeRouteError(deps, w, r, err)
		return
	}

	start := time.Now()
	if err := deps.Router.TestConnection(r.Context(), source.Type, cred); err != nil {
		writeRouteError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"data_source_id": source.ID,
		"type":           string(source.Type),
		"elapsed_ms":     time.Since(start).Milliseconds(),
	})
}

func writeCredentialError(w http.ResponseWriter, r *http.Request, err error) {
	var configErr *credential.ConfigError
	if errors.As(err, &configErr) {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "INVALID_CREDENTIAL", configErr.Error(), false, map[string]any{"field": configErr.Field})
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "CREDENTIAL_ERROR", err.Error(), false, nil)
}
