package org

import (
	"context"
	"testing"

	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/schema"
)

func TestCreateEnrollsCreatorAsOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	acme := mustOrgID(t, "$Acme")

	created := mustCreate(t, f, alice, acme, "Acme Corp")
	if created.Version != 1 || created.Name != "Acme Corp" {
		t.Fatalf("unexpected organization %+v", created)
	}

	owner, err := f.roster.IsOrganizationOwner(ctx, alice, acme)
	if err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if !owner {
		t.Fatalf("expected the creator to own the organization")
	}

	loaded, err := f.service.Get(ctx, acme)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if loaded.ID.String() != "$Acme" {
		t.Fatalf("expected display casing preserved, got %q", loaded.ID.String())
	}
}

func TestCreateRejectsTakenSlug(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	acme := mustOrgID(t, "$acme")

	mustCreate(t, f, mustUserID(t, "@alice"), acme, "Acme")
	_, err := f.service.Create(ctx, mustUserID(t, "@bob"), acme, "Acme Again")
	if !errs.IsKind(err, errs.KindConflict) {
		t.Fatalf("expected conflict for taken slug, got %v", err)
	}
}

func TestRenameRequiresOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	acme := mustOrgID(t, "$acme")

	mustCreate(t, f, alice, acme, "Acme")
	if err := f.service.AddMember(ctx, alice, acme, bob, schema.RoleMember); err != nil {
		t.Fatalf("add member failed: %v", err)
	}
	f.barrier(t)

	_, err := f.service.Rename(ctx, bob, acme, 1, "Bob Industries")
	if !errs.IsKind(err, errs.KindAccessDenied) {
		t.Fatalf("expected denial for non-owner rename, got %v", err)
	}

	renamed, err := f.service.Rename(ctx, alice, acme, 1, "Acme Corp")
	if err != nil {
		t.Fatalf("owner rename failed: %v", err)
	}
	if renamed.Name != "Acme Corp" || renamed.Version != 2 {
		t.Fatalf("unexpected renamed organization %+v", renamed)
	}

	_, err = f.service.Rename(ctx, alice, acme, 1, "Stale")
	if !errs.IsKind(err, errs.KindConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
}

func TestAddMemberRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	acme := mustOrgID(t, "$acme")

	mustCreate(t, f, alice, acme, "Acme")
	if err := f.service.AddMember(ctx, alice, acme, bob, schema.RoleMember); err != nil {
		t.Fatalf("add member failed: %v", err)
	}
	f.barrier(t)

	err := f.service.AddMember(ctx, alice, acme, bob, schema.RoleMember)
	if !errs.IsKind(err, errs.KindConflict) {
		t.Fatalf("expected conflict for duplicate membership, got %v", err)
	}
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	acme := mustOrgID(t, "$acme")

	mustCreate(t, f, alice, acme, "Acme")
	if err := f.service.AddMember(ctx, alice, acme, bob, schema.RoleMember); err != nil {
		t.Fatalf("add member failed: %v", err)
	}
	f.barrier(t)

	if err := f.service.RemoveMember(ctx, bob, acme, alice); !errs.IsKind(err, errs.KindAccessDenied) {
		t.Fatalf("expected denial for non-owner removal, got %v", err)
	}

	if err := f.service.RemoveMember(ctx, alice, acme, bob); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	f.barrier(t)

	member, err := f.roster.IsOrganizationMember(ctx, bob, acme)
	if err != nil {
		t.Fatalf("membership lookup failed: %v", err)
	}
	if member {
		t.Fatalf("expected bob to be removed")
	}

	err = f.service.RemoveMember(ctx, alice, acme, bob)
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected not found for repeated removal, got %v", err)
	}
}

func TestListReturnsMemberOrganizations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")

	mustCreate(t, f, alice, mustOrgID(t, "$acme"), "Acme")
	mustCreate(t, f, alice, mustOrgID(t, "$zenith"), "Zenith")
	mustCreate(t, f, bob, mustOrgID(t, "$other"), "Other")

	organizations, err := f.service.List(ctx, alice)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(organizations) != 2 {
		t.Fatalf("expected 2 organizations, got %d", len(organizations))
	}
	if organizations[0].ID.Key() != "$acme" || organizations[1].ID.Key() != "$zenith" {
		t.Fatalf("unexpected order %q, %q", organizations[0].ID.Key(), organizations[1].ID.Key())
	}
}
