package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const (
	migrationTable = "buster_schema_migrations"
	// advisoryLockKey serializes runners started by several buster-api and
	// buster-migrate processes against the same metadata database.
	advisoryLockKey int64 = 0x6275737465720001
)

var fileNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

// ErrChecksumMismatch is returned when an applied migration's script no longer
// matches the embedded copy.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// Runner applies the embedded metadata schema. Every Up or Down holds a
// session advisory lock and runs each script in its own transaction together
// with its bookkeeping row.
type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type VersionStatus struct {
	Version  int64
	Name     string
	Applied  bool
	Modified bool
}

type script struct {
	version  int64
	name     string
	up       string
	down     string
	checksum string
}

type session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Status lists every embedded version, whether it is applied and whether the
// applied checksum differs from the embedded script.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]VersionStatus, error) {
	scripts, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedChecksums(ctx, db)
	if err != nil {
		return nil, err
	}

	out := make([]VersionStatus, 0, len(scripts))
	for _, s := range scripts {
		sum, ok := applied[s.version]
		out = append(out, VersionStatus{
			Version:  s.version,
			Name:     s.name,
			Applied:  ok,
			Modified: ok && sum != "" && sum != s.checksum,
		})
	}
	return out, nil
}

// Up applies up to steps pending migrations in version order; steps <= 0
// applies all of them.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}

	applied := 0
	err = withLock(ctx, db, func(conn session) error {
		if err := ensureMigrationTable(ctx, conn); err != nil {
			return err
		}
		done, err := appliedChecksums(ctx, conn)
		if err != nil {
			return err
		}
		for _, s := range scripts {
			if sum, ok := done[s.version]; ok && sum != "" && sum != s.checksum {
				return fmt.Errorf("%w: version %d (%s)", ErrChecksumMismatch, s.version, s.name)
			}
		}
		for _, s := range scripts {
			if _, ok := done[s.version]; ok {
				continue
			}
			if steps > 0 && applied >= steps {
				break
			}
			if err := runInTx(ctx, conn, s.up,
				`INSERT INTO `+migrationTable+` (version, name, checksum) VALUES ($1, $2, $3)`,
				s.version, s.name, s.checksum); err != nil {
				return fmt.Errorf("apply migration %d: %w", s.version, err)
			}
			applied++
		}
		return nil
	})
	return applied, err
}

// Down rolls back the newest applied migrations; steps <= 0 means one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	scripts, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]script, len(scripts))
	for _, s := range scripts {
		byVersion[s.version] = s
	}

	rolledBack := 0
	err = withLock(ctx, db, func(conn session) error {
		if err := ensureMigrationTable(ctx, conn); err != nil {
			return err
		}
		done, err := appliedChecksums(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]int64, 0, len(done))
		for version := range done {
			versions = append(versions, version)
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

		for _, version := range versions {
			if rolledBack >= steps {
				break
			}
			s, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("applied migration %d is missing from source", version)
			}
			if err := runInTx(ctx, conn, s.down,
				`DELETE FROM `+migrationTable+` WHERE version = $1`, s.version); err != nil {
				return fmt.Errorf("roll back migration %d: %w", s.version, err)
			}
			rolledBack++
		}
		return nil
	})
	return rolledBack, err
}

func withLock(ctx context.Context, db *sql.DB, fn func(session) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// The lock is session scoped, so release it on a fresh context in
		// case ctx was cancelled mid-run.
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockKey); unlockErr != nil && err == nil {
			err = fmt.Errorf("release migration lock: %w", unlockErr)
		}
	}()
	return fn(conn)
}

func ensureMigrationTable(ctx context.Context, s session) error {
	_, err := s.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func runInTx(ctx context.Context, s session, body, bookkeeping string, args ...any) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("bookkeeping: %w", err)
	}
	return tx.Commit()
}

func appliedChecksums(ctx context.Context, s session) (map[int64]string, error) {
	rows, err := s.QueryContext(ctx, `SELECT version, checksum FROM `+migrationTable)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[int64]string{}
	for rows.Next() {
		var (
			version  int64
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		out[version] = checksum
	}
	return out, rows.Err()
}

func checksumOf(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// loadMigrations pairs NNNNNN_name.up.sql with its .down.sql sibling. Both
// halves are mandatory.
func loadMigrations(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*script{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := fileNamePattern.FindStringSubmatch(path.Base(entry.Name()))
		if parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		s, ok := byVersion[version]
		if !ok {
			s = &script{version: version, name: parts[2]}
			byVersion[version] = s
		} else if s.name != parts[2] {
			return nil, fmt.Errorf("migration %d has conflicting names %q and %q", version, s.name, parts[2])
		}
		if parts[3] == "up" {
			s.up = string(body)
			s.checksum = checksumOf(s.up)
		} else {
			s.down = string(body)
		}
	}

	out := make([]script, 0, len(byVersion))
	for _, s := range byVersion {
		if strings.TrimSpace(s.up) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", s.version)
		}
		if strings.TrimSpace(s.down) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", s.version)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
