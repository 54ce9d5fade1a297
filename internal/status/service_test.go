package status

import (
	"context"
	"testing"
	"time"

	"github.com/teamstatus-dev/backend/internal/errs"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/schema"
)

func TestCreateRequiresProjectMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	web := mustProjectID(t, "$acme#web")
	f.enroll(t, alice, web, schema.RoleMember)

	_, err := f.service.Create(ctx, mustUserID(t, "@mallory"), CreateInput{Project: web, Message: "hi"})
	if !errs.IsKind(err, errs.KindAccessDenied) {
		t.Fatalf("expected denial for non-member, got %v", err)
	}

	created := mustCreateStatus(t, f, alice, web, "Shipped the thing")
	if created.Version != 1 || created.Author.Key() != "@alice" {
		t.Fatalf("unexpected status %+v", created)
	}
}

func TestCreateAcceptsOnlyRecentCallerIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	web := mustProjectID(t, "$acme#web")
	f.enroll(t, alice, web, schema.RoleMember)

	stale, err := ident.NewULIDSource(func() time.Time { return time.Now().Add(-time.Hour) }).NewID()
	if err != nil {
		t.Fatalf("failed to mint stale id: %v", err)
	}
	_, err = f.service.Create(ctx, alice, CreateInput{ID: stale, Project: web, Message: "hi"})
	if !errs.IsKind(err, errs.KindBadRequest) {
		t.Fatalf("expected rejection of stale id, got %v", err)
	}

	fresh, err := f.ids.NewID()
	if err != nil {
		t.Fatalf("failed to mint id: %v", err)
	}
	created, err := f.service.Create(ctx, alice, CreateInput{ID: fresh, Project: web, Message: "hi"})
	if err != nil {
		t.Fatalf("create with fresh id failed: %v", err)
	}
	if created.ID != fresh {
		t.Fatalf("expected caller-supplied id to be kept, got %q", created.ID)
	}
}

func TestUpdateIsAuthorOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	bob := mustUserID(t, "@bob")
	web := mustProjectID(t, "$acme#web")
	f.enroll(t, alice, web, schema.RoleMember)
	f.enroll(t, bob, web, schema.RoleMember)

	created := mustCreateStatus(t, f, alice, web, "Draft")

	_, err := f.service.Update(ctx, bob, created.ID, 1, "Hijacked")
	if !errs.IsKind(err, errs.KindAccessDenied) {
		t.Fatalf("expected denial for non-author edit, got %v", err)
	}

	updated, err := f.service.Update(ctx, alice, created.ID, 1, "Final")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Message != "Final" || updated.Version != 2 {
		t.Fatalf("unexpected status %+v", updated)
	}

	_, err = f.service.Update(ctx, alice, created.ID, 1, "Stale")
	if !errs.IsKind(err, errs.KindConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}
}

func TestDeleteTombstonesTheStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	web := mustProjectID(t, "$acme#web")
	f.enroll(t, alice, web, schema.RoleMember)

	created := mustCreateStatus(t, f, alice, web, "Ephemeral")
	f.barrier(t)

	if err := f.service.Delete(ctx, alice, created.ID, 1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	f.barrier(t)

	listed, err := f.service.List(ctx, alice, web, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected the tombstoned status to leave the listing, got %d", len(listed))
	}

	loaded, err := f.service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("expected the tombstoned status to stay retrievable by key: %v", err)
	}
	if loaded.DeletedAt == nil {
		t.Fatalf("expected a deletion timestamp")
	}
	if loaded.Project.Key() != web.Key() {
		t.Fatalf("expected the project reference to survive the rename, got %q", loaded.Project.Key())
	}

	if _, err := f.service.Update(ctx, alice, created.ID, 2, "Necromancy"); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected a tombstoned status to reject edits, got %v", err)
	}
	if err := f.service.Delete(ctx, alice, created.ID, 2); !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected repeated deletion to miss, got %v", err)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := mustUserID(t, "@alice")
	web := mustProjectID(t, "$acme#web")
	f.enroll(t, alice, web, schema.RoleMember)

	mustCreateStatus(t, f, alice, web, "one")
	second := mustCreateStatus(t, f, alice, web, "two")
	third := mustCreateStatus(t, f, alice, web, "three")
	f.barrier(t)

	listed, err := f.service.List(ctx, alice, web, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected the limit to apply, got %d", len(listed))
	}
	if listed[0].ID != third.ID || listed[1].ID != second.ID {
		t.Fatalf("expected newest-first order, got %q then %q", listed[0].ID, listed[1].ID)
	}
}
