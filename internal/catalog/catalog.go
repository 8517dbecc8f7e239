package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
)

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
)

type Repository interface {
	HealthCheck(ctx context.Context) error
	GetDataSource(ctx context.Context, dataSourceID string) (DataSource, error)
	ReadSecret(ctx context.Context, secretID string) ([]byte, error)
	HasElevatedRole(ctx context.Context, userID, organizationID string) (bool, error)
	CreateDataSource(ctx context.Context, in CreateDataSourceInput) (DataSource, error)
	ListDataSources(ctx context.Context, organizationID string) ([]DataSource, error)
	DeleteDataSource(ctx context.Context, organizationID, dataSourceID string) (bool, error)
	RecordQueryAudit(ctx context.Context, in QueryAudit) error
}

// Organization roles allowed to run modeling statements.
const (
	RoleWorkspaceAdmin = "workspace_admin"
	RoleDataAdmin      = "data_admin"
)

type DataSource struct {
	ID             string
	Name           string
	Type           credential.Dialect
	SecretID       string
	OrganizationID string
	Env            string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CreateDataSourceInput struct {
	Name           string
	Type           credential.Dialect
	OrganizationID string
	Env            string
	CreatedBy      string
	// Secret is the credential JSON as produced by credential.Encode.
	Secret []byte
}

// QueryAudit is one routed statement's outcome. Empty ids are stored as NULL.
type QueryAudit struct {
	QueryID        string
	DataSourceID   string
	OrganizationID string
	UserID         string
	Mode           string
	Outcome        string
	RowCount       int
	Truncated      bool
	Duration       time.Duration
	ErrorMessage   string
}
