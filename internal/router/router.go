// Package router is the single entry point for running SQL against a
// customer data source. It resolves the data source, applies the safety
// filter, opens a tunnel when the credential asks for one, and executes the
// statement through the matching dialect connector.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/observability"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/safety"
	"github.com/jaysatani-27/buster-ai-sub003/internal/tunnel"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

const tracerName = "github.com/jaysatani-27/buster-ai-sub003/internal/router"

var (
	ErrDataSourceNotFound = errors.New("data source not found")
	ErrForbidden          = errors.New("user does not have an elevated role in the data source organization")
	ErrUnsupportedDialect = errors.New("unsupported data source type")
)

// Resolver looks up data sources and organization roles in the metadata
// store.
type Resolver interface {
	ResolveDataSource(ctx context.Context, dataSourceID string) (catalog.DataSource, credential.Credential, error)
	HasElevatedRole(ctx context.Context, userID, organizationID string) (bool, error)
}

type Tunneler interface {
	Establish(ctx context.Context, cfg tunnel.Config) (*tunnel.Handle, error)
}

type Auditor interface {
	RecordQueryAudit(ctx context.Context, in catalog.QueryAudit) error
}

type Options struct {
	Resolver   Resolver
	Connectors []query.Connector
	Tunnels    Tunneler
	// Auditor is optional.
	Auditor       Auditor
	Logger        *slog.Logger
	DefaultLimit  int
	ModelingLimit int
	SampleLimit   int
	Tracer        trace.Tracer
}

type Router struct {
	resolver      Resolver
	connectors    map[credential.Dialect]query.Connector
	tunnels       Tunneler
	auditor       Auditor
	logger        *slog.Logger
	defaultLimit  int
	modelingLimit int
	sampleLimit   int
	tracer        trace.Tracer
}

func New(opts Options) (*Router, error) {
	if opts.Resolver == nil {
		return nil, errors.New("router: resolver is required")
	}
	connectors := make(map[credential.Dialect]query.Connector, len(opts.Connectors))
	for _, connector := range opts.Connectors {
		dialect := connector.Dialect()
		if _, dup := connectors[dialect]; dup {
			return nil, fmt.Errorf("router: duplicate connector for %s", dialect)
		}
		connectors[dialect] = connector
	}

	r := &Router{
		resolver:      opts.Resolver,
		connectors:    connectors,
		tunnels:       opts.Tunnels,
		auditor:       opts.Auditor,
		logger:        opts.Logger,
		defaultLimit:  opts.DefaultLimit,
		modelingLimit: opts.ModelingLimit,
		sampleLimit:   opts.SampleLimit,
		tracer:        opts.Tracer,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.defaultLimit <= 0 {
		r.defaultLimit = query.DefaultRowLimit
	}
	if r.modelingLimit <= 0 {
		r.modelingLimit = query.ModelingRowLimit
	}
	if r.sampleLimit <= 0 {
		r.sampleLimit = query.SampleRowLimit
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r, nil
}

// Request is one statement for one data source. RowLimit <= 0 means the
// router's default cap; larger values are clamped to it.
type Request struct {
	DataSourceID string
	SQL          string
	RowLimit     int
	Write        bool
	// OrganizationID, when set, must own the data source; a mismatch is
	// reported as not found.
	OrganizationID string
	// UserID, when RequireElevatedRole is set, must hold an elevated role in
	// the data source's organization.
	UserID              string
	RequireElevatedRole bool
}

// QueryEngine runs a read-only statement with the default row cap.
func (r *Router) QueryEngine(ctx context.Context, dataSourceID, sql string) (value.ResultSet, error) {
	return r.Route(ctx, Request{DataSourceID: dataSourceID, SQL: sql})
}

// WriteQueryEngine runs a view-creating or view-dropping statement.
func (r *Router) WriteQueryEngine(ctx context.Context, dataSourceID, sql string) (value.ResultSet, error) {
	return r.Route(ctx, Request{DataSourceID: dataSourceID, SQL: sql, Write: true})
}

// ModelingQueryEngine runs a read-only statement for a workspace or data
// admin, capped at the modeling limit.
func (r *Router) ModelingQueryEngine(ctx context.Context, dataSourceID, sql, userID string) (value.ResultSet, error) {
	return r.Route(ctx, Request{
		DataSourceID:        dataSourceID,
		SQL:                 sql,
		RowLimit:            r.modelingLimit,
		UserID:              userID,
		RequireElevatedRole: true,
	})
}

// SampleQuery previews a dataset.
func (r *Router) SampleQuery(ctx context.Context, dataSourceID, sql string) (value.ResultSet, error) {
	return r.Route(ctx, Request{DataSourceID: dataSourceID, SQL: sql, RowLimit: r.sampleLimit})
}

func (r *Router) Route(ctx context.Context, req Request) (result value.ResultSet, err error) {
	start := time.Now()
	queryID := xid.New().String()
	mode := safety.ModeFor(req.Write)
	limit := r.limit(req.RowLimit)

	ctx, span := r.tracer.Start(ctx, "query.route", trace.WithAttributes(
		attribute.String("buster.query_id", queryID),
		attribute.String("buster.data_source_id", req.DataSourceID),
		attribute.String("buster.mode", string(mode)),
	))
	defer span.End()

	var (
		source  catalog.DataSource
		outcome = "ok"
	)
	defer func() {
		r.finish(ctx, span, routeRecord{
			queryID: queryID,
			request: req,
			source:  source,
			mode:    mode,
			outcome: outcome,
			result:  result,
			err:     err,
			elapsed: time.Since(start),
		})
	}()

	source, cred, err := r.resolve(ctx, req.DataSourceID)
	if err == nil && req.OrganizationID != "" && req.OrganizationID != source.OrganizationID {
		source = catalog.DataSource{}
		err = fmt.Errorf("%w: %s", ErrDataSourceNotFound, req.DataSourceID)
	}
	if err != nil {
		outcome = outcomeOf(err)
		return value.ResultSet{}, err
	}
	span.SetAttributes(attribute.String("buster.dialect", string(source.Type)))

	if req.RequireElevatedRole {
		elevated, err := r.resolver.HasElevatedRole(ctx, req.UserID, source.OrganizationID)
		if err != nil {
			outcome = "error"
			return value.ResultSet{}, fmt.Errorf("check organization role: %w", err)
		}
		if !elevated {
			outcome = "forbidden"
			return value.ResultSet{}, ErrForbidden
		}
	}

	if rejection := safety.Check(req.SQL, mode); rejection != nil {
		outcome = "rejected"
		observability.IncrementQueryRejection(string(mode), rejection.Operation)
		r.logger.LogAttrs(ctx, slog.LevelInfo, "query_rejected",
			slog.String("query_id", queryID),
			slog.String("data_source_id", req.DataSourceID),
			slog.String("mode", string(mode)),
			slog.String("operation", rejection.Operation),
		)
		return value.ResultSet{}, rejection
	}

	result, err = r.execute(ctx, source.Type, cred, req.SQL, limit)
	if err != nil {
		outcome = outcomeOf(err)
		return value.ResultSet{}, err
	}
	return result, nil
}

// TestConnection opens a connection with cred and runs SELECT 1 through the
// same path as a routed statement.
func (r *Router) TestConnection(ctx context.Context, dialect credential.Dialect, cred credential.Credential) error {
	ctx, span := r.tracer.Start(ctx, "query.test_connection", trace.WithAttributes(
		attribute.String("buster.dialect", string(dialect)),
	))
	defer span.End()

	if err := cred.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if _, err := r.execute(ctx, dialect, cred, "SELECT 1", 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Router) resolve(ctx context.Context, dataSourceID string) (catalog.DataSource, credential.Credential, error) {
	source, cred, err := r.resolver.ResolveDataSource(ctx, dataSourceID)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.DataSource{}, nil, fmt.Errorf("%w: %s", ErrDataSourceNotFound, dataSourceID)
	}
	if err != nil {
		return catalog.DataSource{}, nil, err
	}
	return source, cred, nil
}

// execute owns the tunnel and connection for one statement; both are torn
// down by defer on every exit path.
func (r *Router) execute(ctx context.Context, dialect credential.Dialect, cred credential.Credential, sql string, limit int) (value.ResultSet, error) {
	connector, err := r.connectorFor(dialect)
	if err != nil {
		return value.ResultSet{}, err
	}

	localPort := 0
	if cfg, ok := cred.Tunnel(); ok {
		if r.tunnels == nil {
			return value.ResultSet{}, fmt.Errorf("%s data source requires an ssh tunnel but tunnels are disabled", dialect)
		}
		handle, err := r.tunnels.Establish(ctx, tunnel.Config(cfg))
		if err != nil {
			var tunnelErr *tunnel.Error
			if errors.As(err, &tunnelErr) {
				observability.IncrementTunnelFailure(tunnelErr.Stage)
			}
			return value.ResultSet{}, fmt.Errorf("open tunnel for %s data source: %w", dialect, err)
		}
		observability.TunnelOpened()
		defer func() {
			if err := handle.Close(); err != nil {
				r.logger.WarnContext(ctx, "ssh tunnel close failed", slog.String("dialect", string(dialect)), slog.Any("error", err))
			}
			observability.TunnelClosed()
		}()
		localPort = handle.LocalPort
	}

	conn, err := connector.Connect(ctx, cred, localPort)
	if err != nil {
		return value.ResultSet{}, err
	}
	defer func() { _ = conn.Close() }()

	return conn.Execute(ctx, sql, limit)
}

// connectorFor is the one place that maps a dialect tag to a connector.
func (r *Router) connectorFor(dialect credential.Dialect) (query.Connector, error) {
	switch dialect {
	case credential.Postgres, credential.Supabase, credential.Redshift,
		credential.MySQL, credential.MariaDB,
		credential.SQLServer, credential.Snowflake,
		credential.BigQuery, credential.Databricks, credential.DuckDB:
		if connector, ok := r.connectors[dialect]; ok {
			return connector, nil
		}
		return nil, fmt.Errorf("%w: no connector registered for %s", ErrUnsupportedDialect, dialect)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}
}

func (r *Router) limit(requested int) int {
	if requested <= 0 || requested > r.defaultLimit {
		return r.defaultLimit
	}
	return requested
}

type routeRecord struct {
	queryID string
	request Request
	source  catalog.DataSource
	mode    safety.Mode
	outcome string
	result  value.ResultSet
	err     error
	elapsed time.Duration
}

func (r *Router) finish(ctx context.Context, span trace.Span, rec routeRecord) {
	dialect := string(rec.source.Type)
	if dialect == "" {
		dialect = "unknown"
	}
	observability.ObserveQueryRoute(dialect, string(rec.mode), rec.outcome, rec.result.Len(), rec.elapsed)

	attrs := []slog.Attr{
		slog.String("query_id", rec.queryID),
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("data_source_id", rec.request.DataSourceID),
		slog.String("dialect", dialect),
		slog.String("mode", string(rec.mode)),
		slog.String("outcome", rec.outcome),
		slog.Int("rows", rec.result.Len()),
		slog.Bool("truncated", rec.result.Truncated),
		slog.String("duration", rec.elapsed.String()),
	}
	level := slog.LevelInfo
	switch rec.outcome {
	case "ok", "rejected", "forbidden", "not_found":
	default:
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", rec.err.Error()))
	}
	r.logger.LogAttrs(ctx, level, "query_route", attrs...)

	span.SetAttributes(attribute.String("buster.outcome", rec.outcome), attribute.Int("buster.rows", rec.result.Len()))
	if rec.err != nil && level == slog.LevelWarn {
		span.RecordError(rec.err)
		span.SetStatus(codes.Error, rec.err.Error())
	}

	if r.auditor == nil || rec.source.ID == "" {
		return
	}
	audit := catalog.QueryAudit{
		QueryID:        rec.queryID,
		DataSourceID:   rec.source.ID,
		OrganizationID: rec.source.OrganizationID,
		UserID:         rec.request.UserID,
		Mode:           string(rec.mode),
		Outcome:        rec.outcome,
		RowCount:       rec.result.Len(),
		Truncated:      rec.result.Truncated,
		Duration:       rec.elapsed,
	}
	if rec.err != nil {
		audit.ErrorMessage = rec.err.Error()
	}
	if err := r.auditor.RecordQueryAudit(context.WithoutCancel(ctx), audit); err != nil {
		r.logger.WarnContext(ctx, "query audit write failed", slog.String("query_id", rec.queryID), slog.Any("error", err))
	}
}

func outcomeOf(err error) string {
	var (
		configErr  *credential.ConfigError
		tunnelErr  *tunnel.Error
		connectErr *query.ConnectError
		execErr    *query.ExecError
	)
	switch {
	case errors.Is(err, ErrDataSourceNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedDialect), errors.As(err, &configErr):
		return "config_error"
	case errors.As(err, &tunnelErr):
		return "tunnel_error"
	case errors.As(err, &connectErr):
		return "connect_error"
	case errors.As(err, &execErr):
		return "exec_error"
	default:
		return "error"
	}
}
