package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	catalogpostgres "github.com/jaysatani-27/buster-ai-sub003/internal/catalog/postgres"
	"github.com/jaysatani-27/buster-ai-sub003/internal/config"
	"github.com/jaysatani-27/buster-ai-sub003/internal/maintenance"
	"github.com/jaysatani-27/buster-ai-sub003/internal/observability"
	s3store "github.com/jaysatani-27/buster-ai-sub003/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("buster-maintenance")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
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
	defer func() { _ = db.Close() }()

	svc := &maintenance.Service{
		Audit: catalogpostgres.NewRepository(db),
		Config: maintenance.Config{
			Interval:        cfg.Maintenance.Interval,
			ExportRetention: cfg.Maintenance.ExportRetention,
			AuditRetention:  cfg.Maintenance.AuditRetention,
		},
		Logger: logger,
	}
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
		svc.Exports = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("maintenance worker started")
	if err := svc.Run(ctx); err != nil {
		logger.Error("maintenance worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("maintenance worker stopped")
}
