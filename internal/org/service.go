// Package org implements organization lifecycle operations: creation with
// automatic owner enrollment, rename, member management, and listings.
package org

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
	errMissingStore  = errors.New("org: store client is required")
	errMissingBus    = errors.New("org: event bus is required")
	errMissingRoster = errors.New("org: roster service is required")
	errMissingIDs    = errors.New("org: ulid source is required")
)

const (
	opServiceNew   = "org.service.new"
	opCreate       = "org.create"
	opRename       = "org.rename"
	opAddMember    = "org.add_member"
	opRemoveMember = "org.remove_member"
	opList         = "org.list"
)

// Organization is an immutable snapshot of one organization entity.
type Organization struct {
	ID      ident.OrganizationID
	Name    string
	Version int64
}

// ServiceConfig describes the dependencies for organization operations.
type ServiceConfig struct {
	Store  *store.Client
	Bus    *bus.Bus
	Roster *roster.Service
	IDs    *ident.ULIDSource
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service executes organization operations against the entity store and
// publishes the resulting domain events.
type Service struct {
	store  *store.Client
	bus    *bus.Bus
	roster *roster.Service
	ids    *ident.ULIDSource
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the organization service.
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

// Create writes a new organization and enrolls the creator as its owner.
// Anyone may create an organization; a taken slug conflicts.
func (s *Service) Create(ctx context.Context, actor ident.UserID, id ident.OrganizationID, name string) (Organization, error) {
	now := s.clock().UTC()

	attributes := map[string]string{
		schema.AttrID: id.String(),
	}
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		attributes[schema.AttrName] = trimmed
	}
	if err := s.store.PutIfAbsent(ctx, store.Item{
		ID:         id.Key(),
		Type:       schema.TypeOrganization,
		Attributes: attributes,
	}); err != nil {
		return Organization{}, err
	}

	memberID, err := s.ids.NewID()
	if err != nil {
		return Organization{}, errs.Internal(opCreate, "id_generation_failed", err)
	}
	if err := s.roster.EnrollOrganizationMember(ctx, memberID, id, actor, schema.RoleOwner, now); err != nil {
		return Organization{}, err
	}

	created := Organization{ID: id, Name: strings.TrimSpace(name), Version: 1}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindOrganizationCreated, now, map[string]any{
		"id":        id.Key(),
		"name":      created.Name,
		"createdBy": actor.Key(),
	})); err != nil {
		return Organization{}, errs.Internal(opCreate, "notify_failed", err)
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindOrganizationMemberCreated, now, map[string]any{
		"id":             memberID,
		"organizationId": id.Key(),
		"userId":         actor.Key(),
		"role":           schema.RoleOwner,
	})); err != nil {
		return Organization{}, errs.Internal(opCreate, "notify_failed", err)
	}
	return created, nil
}

// Rename sets the display name. Owner-only, version-guarded.
func (s *Service) Rename(ctx context.Context, actor ident.UserID, id ident.OrganizationID, version int64, name string) (Organization, error) {
	owner, err := s.roster.IsOrganizationOwner(ctx, actor, id)
	if err != nil {
		return Organization{}, err
	}
	if !owner {
		return Organization{}, errs.AccessDenied(opRename, "not_owner", nil)
	}

	trimmed := strings.TrimSpace(name)
	updated, err := s.store.ConditionalUpdate(ctx, id.Key(), schema.TypeOrganization, version, func(attributes map[string]string) {
		if trimmed == "" {
			delete(attributes, schema.AttrName)
		} else {
			attributes[schema.AttrName] = trimmed
		}
	})
	if err != nil {
		return Organization{}, err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindOrganizationUpdated, s.clock(), map[string]any{
		"id":   id.Key(),
		"name": trimmed,
	})); err != nil {
		return Organization{}, errs.Internal(opRename, "notify_failed", err)
	}
	return toOrganization(updated), nil
}

// AddMember enrolls a user into the organization. Owner-only.
func (s *Service) AddMember(ctx context.Context, actor ident.UserID, id ident.OrganizationID, user ident.UserID, role string) error {
	owner, err := s.roster.IsOrganizationOwner(ctx, actor, id)
	if err != nil {
		return err
	}
	if !owner {
		return errs.AccessDenied(opAddMember, "not_owner", nil)
	}
	member, err := s.roster.IsOrganizationMember(ctx, user, id)
	if err != nil {
		return err
	}
	if member {
		return errs.Conflict(opAddMember, "already_member", nil)
	}

	now := s.clock().UTC()
	memberID, err := s.ids.NewID()
	if err != nil {
		return errs.Internal(opAddMember, "id_generation_failed", err)
	}
	if err := s.roster.EnrollOrganizationMember(ctx, memberID, id, user, role, now); err != nil {
		return err
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindOrganizationMemberCreated, now, map[string]any{
		"id":             memberID,
		"organizationId": id.Key(),
		"userId":         user.Key(),
		"role":           role,
	})); err != nil {
		return errs.Internal(opAddMember, "notify_failed", err)
	}
	return nil
}

// RemoveMember deletes a membership row. Owner-only; keeping at least one
// owner on the organization is left to callers.
func (s *Service) RemoveMember(ctx context.Context, actor ident.UserID, id ident.OrganizationID, user ident.UserID) error {
	owner, err := s.roster.IsOrganizationOwner(ctx, actor, id)
	if err != nil {
		return err
	}
	if !owner {
		return errs.AccessDenied(opRemoveMember, "not_owner", nil)
	}

	members, err := s.roster.OrganizationMembers(ctx, id)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member.User.Key() != user.Key() {
			continue
		}
		if err := s.store.ConditionalDelete(ctx, member.MemberID, schema.TypeOrganizationMember, member.Version); err != nil {
			return err
		}
		if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindOrganizationMemberDeleted, s.clock(), map[string]any{
			"id":             member.MemberID,
			"organizationId": id.Key(),
			"userId":         user.Key(),
		})); err != nil {
			return errs.Internal(opRemoveMember, "notify_failed", err)
		}
		return nil
	}
	return errs.NotFound(opRemoveMember, "not_a_member", nil)
}

// List returns the organizations the user belongs to, ordered by id.
func (s *Service) List(ctx context.Context, user ident.UserID) ([]Organization, error) {
	memberships, err := s.store.QueryByIndex(ctx, schema.IndexUserOrganizations, user.Key(), store.QueryOptions{})
	if err != nil {
		return nil, err
	}

	organizations := make([]Organization, 0, len(memberships))
	for _, membership := range memberships {
		orgKey, _ := membership.Attribute(schema.AttrOrganizationID)
		item, err := s.store.GetByKey(ctx, orgKey, schema.TypeOrganization)
		if err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				// Membership row outlived the organization; skip and let
				// reconciliation clean it up.
				continue
			}
			return nil, err
		}
		organizations = append(organizations, toOrganization(item))
	}
	return organizations, nil
}

// Get loads one organization by id.
func (s *Service) Get(ctx context.Context, id ident.OrganizationID) (Organization, error) {
	item, err := s.store.GetByKey(ctx, id.Key(), schema.TypeOrganization)
	if err != nil {
		return Organization{}, err
	}
	return toOrganization(item), nil
}

func toOrganization(item store.Item) Organization {
	raw, _ := item.Attribute(schema.AttrID)
	id, err := ident.NewOrganizationID(raw)
	if err != nil {
		// Fall back to the store key when the display attribute is missing.
		id = ident.OrganizationID(item.ID)
	}
	name, _ := item.Attribute(schema.AttrName)
	return Organization{ID: id, Name: name, Version: item.Version}
}
