package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/api"
	"github.com/jaysatani-27/buster-ai-sub003/internal/auth"
	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	catalogpostgres "github.com/jaysatani-27/buster-ai-sub003/internal/catalog/postgres"
	"github.com/jaysatani-27/buster-ai-sub003/internal/config"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/export"
	"github.com/jaysatani-27/buster-ai-sub003/internal/nl2sql"
	"github.com/jaysatani-27/buster-ai-sub003/internal/observability"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query/bigquery"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query/databricks"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query/duckdb"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query/mysql"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query/postgres"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query/snowflake"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query/sqlserver"
	"github.com/jaysatani-27/buster-ai-sub003/internal/router"
	"github.com/jaysatani-27/buster-ai-sub003/internal/sqltranslate"
	"github.com/jaysatani-27/buster-ai-sub003/internal/storage"
	s3store "github.com/jaysatani-27/buster-ai-sub003/internal/storage/s3"
	"github.com/jaysatani-27/buster-ai-sub003/internal/tunnel"
)

func main() {
	cfg, err := config.LoadFromEnv("buster-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		ApplicationName: cfg.Service.Name,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)
	resolver := catalog.NewResolver(catalogRepo)

	var objectStore storage.ObjectStore
	var exporter api.ResultExporter
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
		exporter = export.New(store, cfg.ObjectStore.LinkExpiry)
	}

	tunnels := tunnel.NewManager(logger)
	tunnels.SSHBinary = cfg.Tunnel.SSHBinary
	tunnels.KeyscanBinary = cfg.Tunnel.KeyscanBinary
	tunnels.TempDir = cfg.Tunnel.TempDir
	tunnels.PortAttempts = cfg.Tunnel.PortAttempts
	tunnels.ReadyTimeout = cfg.Tunnel.ReadyTimeout

	duck := duckdb.New(objectStore)
	duck.TempDir = cfg.Query.DuckDBTempDir

	queryRouter, err := router.New(router.Options{
		Resolver: resolver,
		Connectors: []query.Connector{
			postgres.New(credential.Postgres),
			postgres.New(credential.Supabase),
			postgres.New(credential.Redshift),
			mysql.New(credential.MySQL),
			mysql.New(credential.MariaDB),
			sqlserver.New(),
			snowflake.New(),
			bigquery.New(cfg.Query.BigQueryBaseURL, cfg.Query.BigQueryTimeout),
			databricks.New(cfg.Query.DatabricksTimeout),
			duck,
		},
		Tunnels:       tunnels,
		Auditor:       catalogRepo,
		Logger:        logger,
		DefaultLimit:  cfg.Query.DefaultRowLimit,
		ModelingLimit: cfg.Query.ModelingRowLimit,
		SampleLimit:   cfg.Query.SampleRowLimit,
	})
	if err != nil {
		logger.Error("failed to initialize query router", slog.Any("error", err))
		os.Exit(1)
	}

	var transpiler sqltranslate.Transpiler
	if cfg.Transpiler.URL != "" {
		httpTranspiler, err := sqltranslate.NewHTTPTranspiler(sqltranslate.HTTPConfig{
			BaseURL: cfg.Transpiler.URL,
			Timeout: cfg.Transpiler.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize sql transpiler", slog.Any("error", err))
			os.Exit(1)
		}
		transpiler, err = sqltranslate.NewCache(httpTranspiler, cfg.Transpiler.CacheSize)
		if err != nil {
			logger.Error("failed to initialize transpiler cache", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var translator nl2sql.Translator
	if cfg.AI.Enabled {
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	deps := api.Dependencies{
		Logger:          logger,
		Router:          queryRouter,
		DataSources:     catalogRepo,
		Credentials:     resolver,
		Exporter:        exporter,
		QueryTranslator: translator,
		SchemaSamples:   cfg.Query.SampleRowLimit,
		Transpiler:      transpiler,
		Readiness: api.CombineReadinessChecks(
			catalogRepo.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}
	if cfg.Auth.RateLimitRPS > 0 {
		limiter, err := auth.NewRateLimiter(cfg.Auth.RateLimitRPS, cfg.Auth.RateLimitBurst)
		if err != nil {
			logger.Error("failed to initialize rate limiter", slog.Any("error", err))
			os.Exit(1)
		}
		deps.RateLimit = limiter.Middleware
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
