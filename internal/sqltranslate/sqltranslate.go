// Package sqltranslate rewrites SQL between warehouse dialects through an
// external transpiler service.
package sqltranslate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
)

// SourceDialect is the dialect generated SQL is written in before transpiling.
const SourceDialect = "postgres"

type Transpiler interface {
	Transpile(ctx context.Context, sql string, dialect credential.Dialect) (string, error)
}

type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPTranspiler posts {sql, read, write} to <base>/transpile and expects
// {sql} or {error} back.
type HTTPTranspiler struct {
	client *resty.Client
}

type transpileRequest struct {
	SQL   string `json:"sql"`
	Read  string `json:"read"`
	Write string `json:"write"`
}

type transpileResponse struct {
	SQL   string `json:"sql"`
	Error string `json:"error"`
}

func NewHTTPTranspiler(cfg HTTPConfig) (*HTTPTranspiler, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("transpiler base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &HTTPTranspiler{client: client}, nil
}

func (t *HTTPTranspiler) Transpile(ctx context.Context, sql string, dialect credential.Dialect) (string, error) {
	var out, failure transpileResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(transpileRequest{SQL: sql, Read: SourceDialect, Write: targetDialect(dialect)}).
		SetResult(&out).
		SetError(&failure).
		Post("/transpile")
	if err != nil {
		return "", fmt.Errorf("request transpile: %w", err)
	}
	if resp.IsError() {
		if failure.Error != "" {
			return "", fmt.Errorf("transpile failed: %s", failure.Error)
		}
		return "", fmt.Errorf("transpile failed status=%d", resp.StatusCode())
	}
	if strings.TrimSpace(out.SQL) == "" {
		return "", errors.New("transpiler returned empty SQL")
	}
	return out.SQL, nil
}

// targetDialect names the dialect the way SQL transpilers spell it.
func targetDialect(dialect credential.Dialect) string {
	switch dialect {
	case credential.Supabase, credential.Postgres:
		return "postgres"
	case credential.MariaDB, credential.MySQL:
		return "mysql"
	case credential.SQLServer:
		return "tsql"
	default:
		return string(dialect)
	}
}

// Cache memoises successful transpilations keyed by dialect and SQL text.
type Cache struct {
	next  Transpiler
	cache *lru.TwoQueueCache[string, string]
}

func NewCache(next Transpiler, size int) (*Cache, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New2Q[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create transpile cache: %w", err)
	}
	return &Cache{next: next, cache: cache}, nil
}

func (c *Cache) Transpile(ctx context.Context, sql string, dialect credential.Dialect) (string, error) {
	key := string(dialect) + "\x00" + sql
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}
	out, err := c.next.Transpile(ctx, sql, dialect)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, out)
	return out, nil
}

func (c *Cache) Len() int { return c.cache.Len() }

// OrOriginal transpiles sql, falling back to the input when the transpiler
// is absent or fails.
func OrOriginal(ctx context.Context, t Transpiler, logger *slog.Logger, sql string, dialect credential.Dialect) string {
	if t == nil {
		return sql
	}
	out, err := t.Transpile(ctx, sql, dialect)
	if err != nil {
		if logger != nil {
			logger.Warn("sql_transpile_failed", "dialect", string(dialect), "error", err.Error())
		}
		return sql
	}
	return out
}
