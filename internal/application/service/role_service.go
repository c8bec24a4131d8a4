package service

import (
	"context"
	"fmt"

	"github.com/nlebrun/docuflow/internal/application/port"
)

// RoleService resolves stage roles to concrete user identities. Every call
// goes to the role directory: eligibility is evaluated at decision time, not
// snapshotted at stage entry, so a user who loses a role mid-workflow can no
// longer approve a pending stage.
type RoleService interface {
	ResolveApprovers(ctx context.Context, role string) ([]string, error)
	IsEligible(ctx context.Context, userID, role string) (bool, error)
	RolesOf(ctx context.Context, userID string) ([]string, error)
}

type roleServiceImpl struct {
	directory port.RoleDirectory
	logger    Logger
}

// NewRoleService creates a new RoleService backed by the given directory
func NewRoleService(directory port.RoleDirectory, logger Logger) RoleService {
	return &roleServiceImpl{
		directory: directory,
		logger:    logger,
	}
}

// ResolveApprovers returns the users currently holding the role
func (s *roleServiceImpl) ResolveApprovers(ctx context.Context, role string) ([]string, error) {
	users, err := s.directory.ResolveApprovers(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("resolve approvers for role %q: %w", role, err)
	}
	return users, nil
}

// IsEligible reports whether the user currently holds the role
func (s *roleServiceImpl) IsEligible(ctx context.Context, userID, role string) (bool, error) {
	roles, err := s.directory.RolesOf(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("roles of user %q: %w", userID, err)
	}
	for _, r := range roles {
		if r == role {
			return true, nil
		}
	}
	return false, nil
}

// RolesOf returns the roles currently held by the user
func (s *roleServiceImpl) RolesOf(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.directory.RolesOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("roles of user %q: %w", userID, err)
	}
	return roles, nil
}
