// Package duckdb opens DuckDB database files in read-only mode. Files may
// live on the API host or be staged from the object store.
package duckdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/query"
	"github.com/jaysatani-27/buster-ai-sub003/internal/storage"
)

// StorePrefix marks a credential path as an object store key.
const StorePrefix = "store://"

type Connector struct {
	// Store serves paths with StorePrefix; nil rejects them.
	Store   storage.ObjectStore
	TempDir string
}

func New(store storage.ObjectStore) *Connector {
	return &Connector{Store: store}
}

func (c *Connector) Dialect() credential.Dialect {
	return credential.DuckDB
}

func (c *Connector) Connect(ctx context.Context, cred credential.Credential, _ int) (query.Conn, error) {
	duck, ok := cred.(credential.DuckDBCredential)
	if !ok {
		return nil, &query.ConnectError{Dialect: credential.DuckDB, Err: fmt.Errorf("credential %T cannot open a duckdb connection", cred)}
	}

	path, workDir, err := c.localPath(ctx, duck.Path)
	if err != nil {
		return nil, &query.ConnectError{Dialect: credential.DuckDB, Err: err}
	}
	cleanup := func() {
		if workDir != "" {
			_ = os.RemoveAll(workDir)
		}
	}

	if _, err := os.Stat(path); err != nil {
		cleanup()
		return nil, &query.ConnectError{Dialect: credential.DuckDB, Err: fmt.Errorf("stat database file: %w", err)}
	}
	db, err := query.OpenDSN(ctx, credential.DuckDB, "duckdb", DSN(path))
	if err != nil {
		cleanup()
		return nil, err
	}
	if len(duck.Schemas) > 0 {
		if _, err := db.ExecContext(ctx, "SET search_path = "+quoteString(strings.Join(duck.Schemas, ","))); err != nil {
			_ = db.Close()
			cleanup()
			return nil, &query.ConnectError{Dialect: credential.DuckDB, Err: fmt.Errorf("set search_path: %w", err)}
		}
	}

	return &Conn{
		SQLConn: query.SQLConn{DB: db, Dialect: credential.DuckDB, Codec: Codec, Rewrite: limitStatement},
		workDir: workDir,
	}, nil
}

// DSN opens path without write access.
func DSN(path string) string {
	return path + "?access_mode=READ_ONLY"
}

// localPath resolves a credential path, downloading store keys into a fresh
// work directory the caller owns.
func (c *Connector) localPath(ctx context.Context, path string) (string, string, error) {
	key, staged := strings.CutPrefix(path, StorePrefix)
	if !staged {
		return path, "", nil
	}
	if c.Store == nil {
		return "", "", errors.New("object store is not configured")
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", "", errors.New("object key is required")
	}

	workDir, err := os.MkdirTemp(c.TempDir, "buster-duckdb-")
	if err != nil {
		return "", "", fmt.Errorf("create staging dir: %w", err)
	}
	reader, err := c.Store.Get(ctx, key)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return "", "", fmt.Errorf("get object %q: %w", key, err)
	}
	localPath := filepath.Join(workDir, sanitizeFileComponent(filepath.Base(key)))
	if err := stageFile(localPath, reader); err != nil {
		_ = reader.Close()
		_ = os.RemoveAll(workDir)
		return "", "", fmt.Errorf("write local database file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		_ = os.RemoveAll(workDir)
		return "", "", fmt.Errorf("close object %q: %w", key, err)
	}
	return localPath, workDir, nil
}

// Conn removes any staged database file once the handle is closed.
type Conn struct {
	query.SQLConn
	workDir string
}

func (c *Conn) Close() error {
	err := c.SQLConn.Close()
	if c.workDir != "" {
		err = errors.Join(err, os.RemoveAll(c.workDir))
		c.workDir = ""
	}
	return err
}

// limitStatement pushes limit+1 down so large scans stop early; the reader
// uses the extra row to flag truncation.
func limitStatement(sqlText string, limit int) string {
	trimmed := query.StripTrailingSemicolons(sqlText)
	if trimmed == "" {
		return sqlText
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", trimmed, limit+1)
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" || value == "." {
		return "database.duckdb"
	}
	return value
}
