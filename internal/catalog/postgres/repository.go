package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
)

const uniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) GetDataSource(ctx context.Context, dataSourceID string) (catalog.DataSource, error) {
	if !validID(dataSourceID) {
		return catalog.DataSource{}, catalog.ErrNotFound
	}

	query := `
SELECT id, name, type, secret_id, organization_id, env, created_by, created_at, updated_at
FROM data_sources
WHERE id = $1 AND deleted_at IS NULL`

	source, err := scanDataSource(r.db.QueryRowContext(ctx, query, dataSourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.DataSource{}, catalog.ErrNotFound
		}
		return catalog.DataSource{}, fmt.Errorf("get data source: %w", err)
	}
	return source, nil
}

func (r *Repository) ReadSecret(ctx context.Context, secretID string) ([]byte, error) {
	if !validID(secretID) {
		return nil, catalog.ErrNotFound
	}

	var secret []byte
	if err := r.db.QueryRowContext(ctx, `
SELECT secret
FROM data_source_secrets
WHERE id = $1`, secretID).Scan(&secret); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("read secret: %w", err)
	}
	return secret, nil
}

func (r *Repository) HasElevatedRole(ctx context.Context, userID, organizationID string) (bool, error) {
	if !validID(userID) || !validID(organizationID) {
		return false, nil
	}

	query := `
SELECT EXISTS (
	SELECT 1
	FROM users_to_organizations
	WHERE user_id = $1
	  AND organization_id = $2
	  AND role IN ($3, $4)
	  AND deleted_at IS NULL
)`
	var elevated bool
	if err := r.db.QueryRowContext(ctx, query, userID, organizationID, catalog.RoleWorkspaceAdmin, catalog.RoleDataAdmin).Scan(&elevated); err != nil {
		return false, fmt.Errorf("check organization role: %w", err)
	}
	return elevated, nil
}

// CreateDataSource stores the secret and the data source row in one
// transaction.
func (r *Repository) CreateDataSource(ctx context.Context, in catalog.CreateDataSourceInput) (catalog.DataSource, error) {
	env := in.Env
	if env == "" {
		env = "dev"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.DataSource{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var secretID string
	if err := tx.QueryRowContext(ctx, `
INSERT INTO data_source_secrets (secret)
VALUES ($1)
RETURNING id`, in.Secret).Scan(&secretID); err != nil {
		return catalog.DataSource{}, fmt.Errorf("insert secret: %w", err)
	}

	source := catalog.DataSource{
		Name:           in.Name,
		Type:           in.Type,
		SecretID:       secretID,
		OrganizationID: in.OrganizationID,
		Env:            env,
		CreatedBy:      in.CreatedBy,
	}
	if err := tx.QueryRowContext(ctx, `
INSERT INTO data_sources (name, type, secret_id, organization_id, env, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, updated_at`,
		in.Name, string(in.Type), secretID, in.OrganizationID, env, in.CreatedBy,
	).Scan(&source.ID, &source.CreatedAt, &source.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return catalog.DataSource{}, catalog.ErrAlreadyExists
		}
		return catalog.DataSource{}, fmt.Errorf("insert data source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return catalog.DataSource{}, fmt.Errorf("commit tx: %w", err)
	}
	return source, nil
}

func (r *Repository) ListDataSources(ctx context.Context, organizationID string) ([]catalog.DataSource, error) {
	sources := make([]catalog.DataSource, 0)
	if !validID(organizationID) {
		return sources, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, type, secret_id, organization_id, env, created_by, created_at, updated_at
FROM data_sources
WHERE organization_id = $1 AND deleted_at IS NULL
ORDER BY name ASC, env ASC`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list data sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		source, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan data source row: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data source rows: %w", err)
	}
	return sources, nil
}

// DeleteDataSource soft-deletes the data source and drops its secret.
func (r *Repository) DeleteDataSource(ctx context.Context, organizationID, dataSourceID string) (bool, error) {
	if !validID(organizationID) || !validID(dataSourceID) {
		return false, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var secretID string
	err = tx.QueryRowContext(ctx, `
UPDATE data_sources
SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
RETURNING secret_id`, dataSourceID, organizationID).Scan(&secretID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete data source: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM data_source_secrets
WHERE id = $1`, secretID); err != nil {
		return false, fmt.Errorf("delete secret: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (r *Repository) RecordQueryAudit(ctx context.Context, in catalog.QueryAudit) error {
	if !validID(in.DataSourceID) {
		return fmt.Errorf("record query audit: invalid data source id %q", in.DataSourceID)
	}

	query := `
INSERT INTO query_audit (query_id, data_source_id, organization_id, user_id, mode, outcome, row_count, truncated, duration_ms, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		in.QueryID,
		in.DataSourceID,
		nullableID(in.OrganizationID),
		nullableID(in.UserID),
		in.Mode,
		in.Outcome,
		in.RowCount,
		in.Truncated,
		in.Duration.Milliseconds(),
		nullableString(in.ErrorMessage),
	); err != nil {
		return fmt.Errorf("record query audit: %w", err)
	}
	return nil
}

// PruneQueryAudit deletes audit rows recorded before cutoff and reports how
// many were removed.
func (r *Repository) PruneQueryAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM query_audit WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune query audit: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune query audit rows affected: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataSource(row rowScanner) (catalog.DataSource, error) {
	var source catalog.DataSource
	var dialect string
	if err := row.Scan(
		&source.ID,
		&source.Name,
		&dialect,
		&source.SecretID,
		&source.OrganizationID,
		&source.Env,
		&source.CreatedBy,
		&source.CreatedAt,
		&source.UpdatedAt,
	); err != nil {
		return catalog.DataSource{}, err
	}
	source.Type = credential.Dialect(dialect)
	return source, nil
}

// validID reports whether id can be compared against a uuid column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullableID(id string) any {
	if !validID(id) {
		return nil
	}
	return id
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
