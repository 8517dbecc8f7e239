package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const defaultApplicationName = "buster-metadata"

// DBConfig describes the metadata database pool. It is separate from the
// single-connection warehouse handles the connectors open per query.
type DBConfig struct {
	DSN             string
	ApplicationName string
	// StatementTimeout bounds every metadata statement server side; zero
	// leaves the server default.
	StatementTimeout time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleTime  time.Duration
	ConnMaxLifetime  time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	connConfig, err := parseConnConfig(cfg)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connConfig)

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping metadata db: %w", err)
	}
	return db, nil
}

func parseConnConfig(cfg DBConfig) (*pgx.ConnConfig, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("metadata dsn is required")
	}
	connConfig, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse metadata dsn: %w", err)
	}
	name := cfg.ApplicationName
	if name == "" {
		name = defaultApplicationName
	}
	if _, set := connConfig.RuntimeParams["application_name"]; !set {
		connConfig.RuntimeParams["application_name"] = name
	}
	if cfg.StatementTimeout > 0 {
		connConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return connConfig, nil
}
