// Package project implements project lifecycle operations: creation inside
// an organization, updates, member management, and the invitation flow.
package project

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/roster"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("project: store client is required")
	errMissingBus    = errors.New("project: event bus is required")
	errMissingRoster = errors.New("project: roster service is required")
	errMissingIDs    = errors.New("project: ulid source is required")
)

const (
	opServiceNew   = "project.service.new"
	opCreate       = "project.create"
	opUpdate       = "project.update"
	opList         = "project.list"
	opListMembers  = "project.list_members"
	opRemoveMember = "project.remove_member"
)

// Project is an immutable snapshot of one project entity.
type Project struct {
	ID      ident.ProjectID
	Name    string
	Color   string
	Version int64
}

// ServiceConfig describes the dependencies for project operations.
type ServiceConfig struct {
	Store  *store.Client
	Bus    *bus.Bus
	Roster *roster.Service
	IDs    *ident.ULIDSource
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service executes project operations against the entity store and publishes
// the resulting domain events.
type Service struct {
	store  *store.Client
	bus    *bus.Bus
	roster *roster.Service
	ids    *ident.ULIDSource
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the project service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errs.Internal(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Bus == nil {
		return nil, errs.Internal(opServiceNew, "missing_bus", errMissingBus)
	}
	if cfg.Roster == nil {
		return nil, errs.Internal(opServiceNew, "missing_roster", errMissingRoster)
	}
	if cfg.IDs == nil {
		return nil, errs.Internal(opServiceNew, "missing_ids", errMissingIDs)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  cfg.Store,
		bus:    cfg.Bus,
		roster: cfg.Roster,
		ids:    cfg.IDs,
		clock:  clock,
		logger: logger,
	}, nil
}

// Create writes a new project under its parent organization and enrolls the
// creator as project owner. The caller must already belong to the parent
// organization, and the organization must exist.
func (s *Service) Create(ctx context.Context, actor ident.UserID, id ident.ProjectID, name, color string) (Project, error) {
	orgID, local := id.Split()
	if local == "" {
		return Project{}, errs.BadRequest(opCreate, "malformed_project_id", nil)
	}

	member, err := s.roster.IsOrganizationMember(ctx, actor, orgID)
	if err != nil {
		return Project{}, err
	}
	if !member {
		return Project{}, errs.AccessDenied(opCreate, "not_an_organization_member", nil)
	}
	if _, err := s.store.GetByKey(ctx, orgID.Key(), schema.TypeOrganization); err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return Project{}, errs.NotFound(opCreate, "organization_absent", nil)
		}
		return Project{}, err
	}

	now := s.clock().UTC()
	attributes := map[string]string{
		schema.AttrID:             id.String(),
		schema.AttrOrganizationID: orgID.Key(),
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		attributes[schema.AttrName] = trimmed
	}
	if trimmed := strings.TrimSpace(color); trimmed != "" {
		attributes[schema.AttrColor] = trimmed
	}
	if err := s.store.PutIfAbsent(ctx, store.Item{
		ID:         id.Key(),
		Type:       schema.TypeProject,
		Attributes: attributes,
	}); err != nil {
		return Project{}, err
	}

	memberID, err := s.ids.NewID()
	if err != nil {
		return Project{}, errs.Internal(opCreate, "id_generation_failed", err)
	}
	if err := s.roster.EnrollProjectMember(ctx, memberID, id, actor, schema.RoleOwner, now); err != nil {
		return Project{}, err
	}

	created := Project{ID: id, Name: strings.TrimSpace(name), Color: strings.TrimSpace(color), Version: 1}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectCreated, now, map[string]any{
		"id":             id.Key(),
		"organizationId": orgID.Key(),
		"name":           created.Name,
		"createdBy":      actor.Key(),
	})); err != nil {
		return Project{}, errs.Internal(opCreate, "notify_failed", err)
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectMemberCreated, now, map[string]any{
		"id":        memberID,
		"projectId": id.Key(),
		"userId":    actor.Key(),
		"role":      schema.RoleOwner,
	})); err != nil {
		return Project{}, errs.Internal(opCreate, "notify_failed", err)
	}
	return created, nil
}

// Update sets the display name and color. Requires project membership and a
// matching version.
func (s *Service) Update(ctx context.Context, actor ident.UserID, id ident.ProjectID, version int64, name, color string) (Project, error) {
	member, err := s.roster.IsProjectMember(ctx, actor, id)
	if err != nil {
		return Project{}, err
	}
	if !member {
		return Project{}, errs.AccessDenied(opUpdate, "not_a_member", nil)
	}

	trimmedName := strings.TrimSpace(name)
	trimmedColor := strings.TrimSpace(color)
	updated, err := s.store.ConditionalUpdate(ctx, id.Key(), schema.TypeProject, version, func(attributes map[string]string) {
		if trimmedName == "" {
			delete(attributes, schema.AttrName)
		} else {
			attributes[schema.AttrName] = trimmedName
		}
		if trimmedColor == "" {
			delete(attributes, schema.AttrColor)
		} else {
			attributes[schema.AttrColor] = trimmedColor
		}
	})
	if err != nil {
		return Project{}, err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectUpdated, s.clock(), map[string]any{
		"id":   id.Key(),
		"name": trimmedName,
	})); err != nil {
		return Project{}, errs.Internal(opUpdate, "notify_failed", err)
	}
	return toProject(updated), nil
}

// List returns the projects the user belongs to within one organization,
// ordered by project id.
func (s *Service) List(ctx context.Context, actor ident.UserID, org ident.OrganizationID) ([]Project, error) {
	memberships, err := s.store.QueryByIndex(ctx, schema.IndexUserProjects, actor.Key(), store.QueryOptions{})
	if err != nil {
		return nil, err
	}

	projects := make([]Project, 0, len(memberships))
	for _, membership := range memberships {
		projectKey, _ := membership.Attribute(schema.AttrProjectID)
		if ident.ProjectID(projectKey).Organization().Key() != org.Key() {
			continue
		}
		item, err := s.store.GetByKey(ctx, projectKey, schema.TypeProject)
		if err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				continue
			}
			return nil, err
		}
		projects = append(projects, toProject(item))
	}
	return projects, nil
}

// ListMembers returns the project's membership rows. Requires membership.
func (s *Service) ListMembers(ctx context.Context, actor ident.UserID, id ident.ProjectID) ([]roster.Member, error) {
	member, err := s.roster.IsProjectMember(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errs.AccessDenied(opListMembers, "not_a_member", nil)
	}
	return s.roster.ProjectMembers(ctx, id)
}

// RemoveMember deletes a project membership row. Allowed for project owners
// and for a member leaving on their own.
func (s *Service) RemoveMember(ctx context.Context, actor ident.UserID, id ident.ProjectID, user ident.UserID) error {
	if actor.Key() != user.Key() {
		owner, err := s.roster.IsProjectOwner(ctx, actor, id)
		if err != nil {
			return err
		}
		if !owner {
			return errs.AccessDenied(opRemoveMember, "not_owner", nil)
		}
	}

	if err := s.roster.RemoveProjectMember(ctx, user, id); err != nil {
		return err
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectMemberDeleted, s.clock(), map[string]any{
		"projectId": id.Key(),
		"userId":    user.Key(),
	})); err != nil {
		return errs.Internal(opRemoveMember, "notify_failed", err)
	}
	return nil
}

// Get loads one project by id.
func (s *Service) Get(ctx context.Context, id ident.ProjectID) (Project, error) {
	item, err := s.store.GetByKey(ctx, id.Key(), schema.TypeProject)
	if err != nil {
		return Project{}, err
	}
	return toProject(item), nil
}

func toProject(item store.Item) Project {
	raw, _ := item.Attribute(schema.AttrID)
	id, err := ident.NewProjectID(raw)
	if err != nil {
		id = ident.ProjectID(item.ID)
	}
	name, _ := item.Attribute(schema.AttrName)
	color, _ := item.Attribute(schema.AttrColor)
	return Project{ID: id, Name: name, Color: color, Version: item.Version}
}
