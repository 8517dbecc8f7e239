package catalog

import (
	"context"
	"fmt"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
)

// Resolver turns a data source id into its dialect and decoded credential.
type Resolver struct {
	Repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{Repo: repo}
}

func (r *Resolver) ResolveDataSource(ctx context.Context, dataSourceID string) (DataSource, credential.Credential, error) {
	source, err := r.Repo.GetDataSource(ctx, dataSourceID)
	if err != nil {
		return DataSource{}, nil, err
	}
	secret, err := r.Repo.ReadSecret(ctx, source.SecretID)
	if err != nil {
		return DataSource{}, nil, fmt.Errorf("read secret for data source %s: %w", source.ID, err)
	}
	cred, err := credential.Decode(source.Type, secret)
	if err != nil {
		return DataSource{}, nil, fmt.Errorf("decode credential for data source %s: %w", source.ID, err)
	}
	return source, cred, nil
}

func (r *Resolver) HasElevatedRole(ctx context.Context, userID, organizationID string) (bool, error) {
	return r.Repo.HasElevatedRole(ctx, userID, organizationID)
}
