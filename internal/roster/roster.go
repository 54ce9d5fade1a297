// Package roster derives membership roles from secondary index lookups and
// gates mutations for the domain operations. Roles are never stored on the
// user; they live on the membership rows and are resolved per check.
package roster

import (
	"context"
	"errors"

	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"go.uber.org/zap"
)

var errMissingStore = errors.New("roster: store client is required")

const (
	opServiceNew       = "roster.service.new"
	opOrganizationRole = "roster.organization_role"
	opProjectRole      = "roster.project_role"
)

// ServiceConfig describes the dependencies for membership resolution.
type ServiceConfig struct {
	Store  *store.Client
	Logger *zap.Logger
}

// Service answers membership and role questions. Lookups ride the
// eventually-consistent membership indexes; a just-created membership may
// take a moment to become visible.
type Service struct {
	store  *store.Client
	logger *zap.Logger
}

// NewService constructs the roster service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errs.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, logger: logger}, nil
}

// OrganizationRole returns the caller's role in the organization, or
// ok=false when no membership row exists.
func (s *Service) OrganizationRole(ctx context.Context, user ident.UserID, org ident.OrganizationID) (string, bool, error) {
	items, err := s.store.QueryByIndex(ctx, schema.IndexUserOrganizations, user.Key(), store.QueryOptions{
		RangeStart: org.Key(),
	})
	if err != nil {
		s.logger.Error("organization role lookup failed",
			zap.String("operation", opOrganizationRole),
			zap.String("user", user.Key()),
			zap.String("organization", org.Key()),
			zap.Error(err))
		return "", false, err
	}
	for _, item := range items {
		if value, _ := item.Attribute(schema.AttrOrganizationID); value == org.Key() {
			role, _ := item.Attribute(schema.AttrRole)
			return role, true, nil
		}
	}
	return "", false, nil
}

// IsOrganizationMember reports whether the user belongs to the organization
// in any role.
func (s *Service) IsOrganizationMember(ctx context.Context, user ident.UserID, org ident.OrganizationID) (bool, error) {
	_, ok, err := s.OrganizationRole(ctx, user, org)
	return ok, err
}

// IsOrganizationOwner reports whether the user owns the organization.
func (s *Service) IsOrganizationOwner(ctx context.Context, user ident.UserID, org ident.OrganizationID) (bool, error) {
	role, ok, err := s.OrganizationRole(ctx, user, org)
	return ok && role == schema.RoleOwner, err
}

// ProjectRole returns the caller's role in the project, or ok=false when no
// membership row exists.
func (s *Service) ProjectRole(ctx context.Context, user ident.UserID, project ident.ProjectID) (string, bool, error) {
	items, err := s.store.QueryByIndex(ctx, schema.IndexUserProjects, user.Key(), store.QueryOptions{
		RangeStart: project.Key(),
	})
	if err != nil {
		s.logger.Error("project role lookup failed",
			zap.String("operation", opProjectRole),
			zap.String("user", user.Key()),
			zap.String("project", project.Key()),
			zap.Error(err))
		return "", false, err
	}
	for _, item := range items {
		if value, _ := item.Attribute(schema.AttrProjectID); value == project.Key() {
			role, _ := item.Attribute(schema.AttrRole)
			return role, true, nil
		}
	}
	return "", false, nil
}

// IsProjectMember reports whether the user belongs to the project in any
// role.
func (s *Service) IsProjectMember(ctx context.Context, user ident.UserID, project ident.ProjectID) (bool, error) {
	_, ok, err := s.ProjectRole(ctx, user, project)
	return ok, err
}

// IsProjectOwner reports whether the user owns the project.
func (s *Service) IsProjectOwner(ctx context.Context, user ident.UserID, project ident.ProjectID) (bool, error) {
	role, ok, err := s.ProjectRole(ctx, user, project)
	return ok && role == schema.RoleOwner, err
}
