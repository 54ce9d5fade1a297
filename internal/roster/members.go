package roster

import (
	"context"
	"strconv"
	"time"

	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
)

const (
	opEnrollOrganization = "roster.enroll_organization_member"
	opEnrollProject      = "roster.enroll_project_member"
	opRemoveProject      = "roster.remove_project_member"
	opListProject        = "roster.list_project_members"
	opListOrganization   = "roster.list_organization_members"
)

// Member is one membership row, organization- or project-scoped.
type Member struct {
	MemberID string
	User     ident.UserID
	Role     string
	Version  int64
	JoinedAt time.Time
}

// EnrollOrganizationMember writes one organizationMember row. The memberID
// is a freshly minted ULID; a duplicate id conflicts.
func (s *Service) EnrollOrganizationMember(ctx context.Context, memberID string, org ident.OrganizationID, user ident.UserID, role string, at time.Time) error {
	if role != schema.RoleOwner && role != schema.RoleMember {
		return errs.BadRequest(opEnrollOrganization, "invalid_role", nil)
	}
	return s.store.PutIfAbsent(ctx, store.Item{
		ID:   memberID,
		Type: schema.TypeOrganizationMember,
		Attributes: map[string]string{
			schema.AttrID:             memberID,
			schema.AttrOrganizationID: org.Key(),
			schema.AttrUserID:         user.Key(),
			schema.AttrRole:           role,
			schema.AttrCreatedAt:      strconv.FormatInt(at.UTC().Unix(), 10),
		},
	})
}

// EnrollProjectMember writes one projectMember row.
func (s *Service) EnrollProjectMember(ctx context.Context, memberID string, project ident.ProjectID, user ident.UserID, role string, at time.Time) error {
	if role != schema.RoleOwner && role != schema.RoleMember {
		return errs.BadRequest(opEnrollProject, "invalid_role", nil)
	}
	return s.store.PutIfAbsent(ctx, store.Item{
		ID:   memberID,
		Type: schema.TypeProjectMember,
		Attributes: map[string]string{
			schema.AttrID:        memberID,
			schema.AttrProjectID: project.Key(),
			schema.AttrUserID:    user.Key(),
			schema.AttrRole:      role,
			schema.AttrCreatedAt: strconv.FormatInt(at.UTC().Unix(), 10),
		},
	})
}

// RemoveProjectMember hard-deletes the membership row for (user, project).
// Membership rows are removed, never tombstoned.
func (s *Service) RemoveProjectMember(ctx context.Context, user ident.UserID, project ident.ProjectID) error {
	items, err := s.store.QueryByIndex(ctx, schema.IndexUserProjects, user.Key(), store.QueryOptions{
		RangeStart: project.Key(),
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		if value, _ := item.Attribute(schema.AttrProjectID); value != project.Key() {
			continue
		}
		return s.store.ConditionalDelete(ctx, item.ID, schema.TypeProjectMember, item.Version)
	}
	return errs.NotFound(opRemoveProject, "not_a_member", nil)
}

// ProjectMembers lists the project's membership rows ordered by user id.
func (s *Service) ProjectMembers(ctx context.Context, project ident.ProjectID) ([]Member, error) {
	items, err := s.store.QueryByIndex(ctx, schema.IndexProjectMembers, project.Key(), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return s.toMembers(opListProject, items)
}

// OrganizationMembers lists the organization's membership rows ordered by
// user id.
func (s *Service) OrganizationMembers(ctx context.Context, org ident.OrganizationID) ([]Member, error) {
	items, err := s.store.QueryByIndex(ctx, schema.IndexOrganizationMembers, org.Key(), store.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return s.toMembers(opListOrganization, items)
}

func (s *Service) toMembers(operation string, items []store.Item) ([]Member, error) {
	members := make([]Member, 0, len(items))
	for _, item := range items {
		rawUser, _ := item.Attribute(schema.AttrUserID)
		user, err := ident.NewUserID(rawUser)
		if err != nil {
			return nil, errs.Internal(operation, "corrupt_member_row", err)
		}
		role, _ := item.Attribute(schema.AttrRole)
		member := Member{
			MemberID: item.ID,
			User:     user,
			Role:     role,
			Version:  item.Version,
		}
		if raw, ok := item.Attribute(schema.AttrCreatedAt); ok {
			if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
				member.JoinedAt = time.Unix(seconds, 0).UTC()
			}
		}
		members = append(members, member)
	}
	return members, nil
}
