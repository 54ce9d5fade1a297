package project

import (
	"context"
	"testing"

	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/schema"
)

func TestInviteRequiresOrganizationOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	f.newOrganization(t, alice, "$acme")
	web := mustProjectID(t, "$acme#web")

	if _, err := f.service.Create(ctx, alice, web, "Web", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.barrier(t)

	_, err := f.service.Invite(ctx, bob, web, bob, schema.RoleMember)
	if !errs.IsKind(err, errs.KindAccessDenied) {
		t.Fatalf("expected denial for non-owner invite, got %v", err)
	}

	_, err = f.service.Invite(ctx, alice, web, bob, "superuser")
	if !errs.IsKind(err, errs.KindBadRequest) {
		t.Fatalf("expected rejection of unknown role, got %v", err)
	}
}

func TestAcceptEnrollsOnlyTheInvitee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	f.newOrganization(t, alice, "$acme")
	web := mustProjectID(t, "$acme#web")

	if _, err := f.service.Create(ctx, alice, web, "Web", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.barrier(t)

	invitation, err := f.service.Invite(ctx, alice, web, bob, schema.RoleMember)
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	f.barrier(t)

	if err := f.service.Accept(ctx, mustUserID(t, "@mallory"), invitation.ID); !errs.IsKind(err, errs.KindAccessDenied) {
		t.Fatalf("expected denial for foreign accept, got %v", err)
	}

	if err := f.service.Accept(ctx, bob, invitation.ID); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	f.barrier(t)

	member, err := f.roster.IsProjectMember(ctx, bob, web)
	if err != nil {
		t.Fatalf("membership lookup failed: %v", err)
	}
	if !member {
		t.Fatalf("expected bob to be enrolled")
	}
}

func TestAcceptConsumesTheInvitation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	f.newOrganization(t, alice, "$acme")
	web := mustProjectID(t, "$acme#web")

	if _, err := f.service.Create(ctx, alice, web, "Web", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.barrier(t)

	invitation, err := f.service.Invite(ctx, alice, web, bob, schema.RoleOwner)
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	f.barrier(t)

	if err := f.service.Accept(ctx, bob, invitation.ID); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	err = f.service.Accept(ctx, bob, invitation.ID)
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected repeated accept to miss, got %v", err)
	}
}

func TestListInvitations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	f.newOrganization(t, alice, "$acme")
	web := mustProjectID(t, "$acme#web")
	api := mustProjectID(t, "$acme#api")

	if _, err := f.service.Create(ctx, alice, web, "Web", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.service.Create(ctx, alice, api, "API", ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	f.barrier(t)

	first, err := f.service.Invite(ctx, alice, web, bob, schema.RoleMember)
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	second, err := f.service.Invite(ctx, alice, api, bob, schema.RoleMember)
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	f.barrier(t)

	invitations, err := f.service.ListInvitations(ctx, bob)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(invitations) != 2 {
		t.Fatalf("expected 2 invitations, got %d", len(invitations))
	}
	if invitations[0].ID != first.ID || invitations[1].ID != second.ID {
		t.Fatalf("expected oldest-first order, got %q then %q", invitations[0].ID, invitations[1].ID)
	}
}
