// Package auth resolves API keys to an organization, a user and roles.
package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Roles mirror the organization roles stored in the metadata database.
const (
	RoleWorkspaceAdmin = "workspace_admin"
	RoleDataAdmin      = "data_admin"
	RoleQuerier        = "querier"
	RoleViewer         = "viewer"
)

type Identity struct {
	APIKeyID       string
	OrganizationID string
	UserID         string
	Roles          []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// HasAnyRole reports whether the identity holds at least one of roles.
func (i Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:organization:user:role|role
// entries.
func NewStaticAPIKeyValidator(keyList string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	keyList = strings.TrimSpace(keyList)
	if keyList == "" {
		return validator, nil
	}

	for i, entry := range strings.Split(keyList, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid static key entry %d: expected key:organization:user:role|role", i)
		}
		for j := range parts {
			parts[j] = strings.TrimSpace(parts[j])
		}
		key, organization, user := parts[0], parts[1], parts[2]
		if key == "" || organization == "" || user == "" {
			return nil, fmt.Errorf("invalid static key entry %d: empty key, organization or user", i)
		}
		var roles []string
		for _, role := range strings.Split(parts[3], "|") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %d: at least one role is required", i)
		}
		if _, dup := validator.keys[key]; dup {
			return nil, fmt.Errorf("invalid static key entry %d: duplicate key", i)
		}
		slices.Sort(roles)
		validator.keys[key] = Identity{
			APIKeyID:       fmt.Sprintf("static-%d", i),
			OrganizationID: organization,
			UserID:         user,
			Roles:          slices.Compact(roles),
		}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int { return len(v.keys) }
