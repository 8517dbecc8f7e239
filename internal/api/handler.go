package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	"github.com/jaysatani-27/buster-ai-sub003/internal/config"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/export"
	"github.com/jaysatani-27/buster-ai-sub003/internal/nl2sql"
	"github.com/jaysatani-27/buster-ai-sub003/internal/observability"
	"github.com/jaysatani-27/buster-ai-sub003/internal/router"
	"github.com/jaysatani-27/buster-ai-sub003/internal/sqltranslate"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

type ReadinessCheck func(ctx context.Context) error

// QueryRouter is the subset of *router.Router the handlers call.
type QueryRouter interface {
	Route(ctx context.Context, req router.Request) (value.ResultSet, error)
	ModelingQueryEngine(ctx context.Context, dataSourceID, sql, userID string) (value.ResultSet, error)
	SampleQuery(ctx context.Context, dataSourceID, sql string) (value.ResultSet, error)
	TestConnection(ctx context.Context, dialect credential.Dialect, cred credential.Credential) error
}

type DataSourceStore interface {
	CreateDataSource(ctx context.Context, in catalog.CreateDataSourceInput) (catalog.DataSource, error)
	ListDataSources(ctx context.Context, organizationID string) ([]catalog.DataSource, error)
	DeleteDataSource(ctx context.Context, organizationID, dataSourceID string) (bool, error)
}

type CredentialResolver interface {
	ResolveDataSource(ctx context.Context, dataSourceID string) (catalog.DataSource, credential.Credential, error)
}

type ResultExporter interface {
	Export(ctx context.Context, key string, rs value.ResultSet) (export.Result, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	RateLimit         func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Router            QueryRouter
	DataSources       DataSourceStore
	Credentials       CredentialResolver
	Exporter          ResultExporter
	QueryTranslator   nl2sql.Translator
	// SchemaSamples is the number of rows sampled per dataset for SQL
	// generation.
	SchemaSamples int
	// Transpiler is optional; without it generated SQL is requested in the
	// target dialect directly.
	Transpiler sqltranslate.Transpiler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/data-sources", func(w http.ResponseWriter, r *http.Request) {
		handleCreateDataSource(deps, w, r)
	})
	protected.HandleFunc("GET /v1/data-sources", func(w http.ResponseWriter, r *http.Request) {
		handleListDataSources(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/data-sources/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteDataSource(deps, w, r)
	})
	protected.HandleFunc("POST /v1/data-sources/{id}/test", func(w http.ResponseWriter, r *http.Request) {
		handleTestDataSource(deps, w, r)
	})
	protected.HandleFunc("POST /v1/data-sources/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("POST /v1/data-sources/{id}/write", func(w http.ResponseWriter, r *http.Request) {
		handleWrite(deps, w, r)
	})
	protected.HandleFunc("POST /v1/data-sources/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sql/run", func(w http.ResponseWriter, r *http.Request) {
		handleRunSQL(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sql/generate", func(w http.ResponseWriter, r *http.Request) {
		handleGenerateSQL(deps, w, r)
	})
	protected.HandleFunc("GET /v1/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWebSocket(deps, cfg.Auth.CORSOrigins, w, r)
	})

	var protectedHandler http.Handler = protected
	if deps.RateLimit != nil {
		protectedHandler = deps.RateLimit(protectedHandler)
	}
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/data-sources", protectedHandler)
	mux.Handle("GET /v1/data-sources", protectedHandler)
	mux.Handle("DELETE /v1/data-sources/{id}", protectedHandler)
	mux.Handle("POST /v1/data-sources/{id}/test", protectedHandler)
	mux.Handle("POST /v1/data-sources/{id}/query", protectedHandler)
	mux.Handle("POST /v1/data-sources/{id}/write", protectedHandler)
	mux.Handle("POST /v1/data-sources/{id}/export", protectedHandler)
	mux.Handle("POST /v1/sql/run", protectedHandler)
	mux.Handle("POST /v1/sql/generate", protectedHandler)
	mux.Handle("GET /v1/ws", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
	}
	if len(cfg.Auth.CORSOrigins) > 0 {
		middlewares = append(middlewares, cors.New(cors.Options{
			AllowedOrigins: cfg.Auth.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key", "X-Organization-ID", "X-User-ID", "X-Trace-ID"},
			MaxAge:         300,
		}).Handler)
	}
	middlewares = append(middlewares, observability.MetricsMiddleware)
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

// CheckObjectStoreConfig passes when exports are disabled.
func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
