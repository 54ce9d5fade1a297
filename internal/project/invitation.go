package project

import (
	"context"
	"strconv"
	"time"

	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
)

const (
	opInvite          = "project.invite"
	opAccept          = "project.accept_invitation"
	opListInvitations = "project.list_invitations"
)

// Invitation is an immutable snapshot of one pending project invitation. It
// is consumed (deleted) exactly once on acceptance.
type Invitation struct {
	ID        string
	Project   ident.ProjectID
	Invitee   ident.UserID
	Inviter   ident.UserID
	Role      string
	CreatedAt time.Time
}

// Invite records a pending invitation. Only an owner of the project's parent
// organization may invite.
func (s *Service) Invite(ctx context.Context, actor ident.UserID, id ident.ProjectID, invitee ident.UserID, role string) (Invitation, error) {
	if role != schema.RoleOwner && role != schema.RoleMember {
		return Invitation{}, errs.BadRequest(opInvite, "invalid_role", nil)
	}
	orgID := id.Organization()
	if orgID == "" {
		return Invitation{}, errs.BadRequest(opInvite, "malformed_project_id", nil)
	}
	owner, err := s.roster.IsOrganizationOwner(ctx, actor, orgID)
	if err != nil {
		return Invitation{}, err
	}
	if !owner {
		return Invitation{}, errs.AccessDenied(opInvite, "not_an_organization_owner", nil)
	}

	now := s.clock().UTC()
	invitationID, err := s.ids.NewID()
	if err != nil {
		return Invitation{}, errs.Internal(opInvite, "id_generation_failed", err)
	}
	if err := s.store.PutIfAbsent(ctx, store.Item{
		ID:   invitationID,
		Type: schema.TypeProjectInvitation,
		Attributes: map[string]string{
			schema.AttrID:        invitationID,
			schema.AttrProjectID: id.Key(),
			schema.AttrInvitee:   invitee.Key(),
			schema.AttrInviter:   actor.Key(),
			schema.AttrRole:      role,
			schema.AttrCreatedAt: strconv.FormatInt(now.Unix(), 10),
		},
	}); err != nil {
		return Invitation{}, err
	}

	invitation := Invitation{
		ID:        invitationID,
		Project:   id,
		Invitee:   invitee,
		Inviter:   actor,
		Role:      role,
		CreatedAt: now,
	}
	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectInvitationCreated, now, map[string]any{
		"id":        invitationID,
		"projectId": id.Key(),
		"invitee":   invitee.Key(),
		"inviter":   actor.Key(),
		"role":      role,
	})); err != nil {
		return Invitation{}, errs.Internal(opInvite, "notify_failed", err)
	}
	return invitation, nil
}

// Accept consumes a pending invitation and enrolls the invitee. Only the
// named invitee may accept; two racing accepts resolve to one success and
// one Conflict through the conditional delete.
func (s *Service) Accept(ctx context.Context, actor ident.UserID, invitationID string) error {
	if err := ident.VerifyOlderULID(invitationID, s.clock()); err != nil {
		return errs.BadRequest(opAccept, "malformed_invitation_id", err)
	}

	item, err := s.store.GetByKey(ctx, invitationID, schema.TypeProjectInvitation)
	if err != nil {
		return err
	}
	invitee, _ := item.Attribute(schema.AttrInvitee)
	if invitee != actor.Key() {
		return errs.AccessDenied(opAccept, "not_the_invitee", nil)
	}
	projectKey, _ := item.Attribute(schema.AttrProjectID)
	projectID, err := ident.NewProjectID(projectKey)
	if err != nil {
		return errs.Internal(opAccept, "corrupt_invitation", err)
	}
	role, _ := item.Attribute(schema.AttrRole)
	if role == "" {
		role = schema.RoleMember
	}

	// Consume first: the conditional delete is the single-acceptance gate.
	if err := s.store.ConditionalDelete(ctx, invitationID, schema.TypeProjectInvitation, item.Version); err != nil {
		return err
	}

	now := s.clock().UTC()
	alreadyMember, err := s.roster.IsProjectMember(ctx, actor, projectID)
	if err != nil {
		return err
	}
	if !alreadyMember {
		memberID, err := s.ids.NewID()
		if err != nil {
			return errs.Internal(opAccept, "id_generation_failed", err)
		}
		if err := s.roster.EnrollProjectMember(ctx, memberID, projectID, actor, role, now); err != nil {
			return err
		}
		if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectMemberCreated, now, map[string]any{
			"id":        memberID,
			"projectId": projectID.Key(),
			"userId":    actor.Key(),
			"role":      role,
		})); err != nil {
			return errs.Internal(opAccept, "notify_failed", err)
		}
	}

	if err := s.bus.Notify(ctx, bus.NewEvent(bus.KindProjectInvitationAccepted, now, map[string]any{
		"id":        invitationID,
		"projectId": projectID.Key(),
		"invitee":   actor.Key(),
	})); err != nil {
		return errs.Internal(opAccept, "notify_failed", err)
	}
	return nil
}

// ListInvitations returns the caller's pending invitations, oldest first.
func (s *Service) ListInvitations(ctx context.Context, actor ident.UserID) ([]Invitation, error) {
	items, err := s.store.QueryByIndex(ctx, schema.IndexUserInvitations, actor.Key(), store.QueryOptions{})
	if err != nil {
		return nil, err
	}

	invitations := make([]Invitation, 0, len(items))
	for _, item := range items {
		projectKey, _ := item.Attribute(schema.AttrProjectID)
		projectID, err := ident.NewProjectID(projectKey)
		if err != nil {
			return nil, errs.Internal(opListInvitations, "corrupt_invitation", err)
		}
		rawInviter, _ := item.Attribute(schema.AttrInviter)
		inviter, err := ident.NewUserID(rawInviter)
		if err != nil {
			return nil, errs.Internal(opListInvitations, "corrupt_invitation", err)
		}
		role, _ := item.Attribute(schema.AttrRole)
		invitation := Invitation{
			ID:      item.ID,
			Project: projectID,
			Invitee: actor,
			Inviter: inviter,
			Role:    role,
		}
		if raw, ok := item.Attribute(schema.AttrCreatedAt); ok {
			if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
				invitation.CreatedAt = time.Unix(seconds, 0).UTC()
			}
		}
		invitations = append(invitations, invitation)
	}
	return invitations, nil
}
