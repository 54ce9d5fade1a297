package project

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/org"
	"github.com/teamstatus-dev/backend/internal/roster"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"gorm.io/gorm"
)

type fixture struct {
	service *Service
	orgs    *org.Service
	store   *store.Client
	bus     *bus.Bus
	roster  *roster.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:project_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access raw connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(store.Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	client, err := store.NewClient(store.ClientConfig{Database: db, Indexes: schema.Indexes()})
	if err != nil {
		t.Fatalf("failed to construct store client: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})

	eventBus := bus.New()
	ids := ident.NewULIDSource(time.Now)
	rosterService, err := roster.NewService(roster.ServiceConfig{Store: client})
	if err != nil {
		t.Fatalf("failed to construct roster service: %v", err)
	}
	orgService, err := org.NewService(org.ServiceConfig{
		Store: client, Bus: eventBus, Roster: rosterService, IDs: ids,
	})
	if err != nil {
		t.Fatalf("failed to construct org service: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Store: client, Bus: eventBus, Roster: rosterService, IDs: ids,
	})
	if err != nil {
		t.Fatalf("failed to construct project service: %v", err)
	}
	return &fixture{service: service, orgs: orgService, store: client, bus: eventBus, roster: rosterService}
}

func (f *fixture) barrier(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.store.Barrier(ctx); err != nil {
		t.Fatalf("barrier failed: %v", err)
	}
}

// newOrganization creates the parent organization owned by the actor.
func (f *fixture) newOrganization(t *testing.T, actor ident.UserID, raw string) ident.OrganizationID {
	t.Helper()
	id, err := ident.NewOrganizationID(raw)
	if err != nil {
		t.Fatalf("failed to parse organization id %q: %v", raw, err)
	}
	if _, err := f.orgs.Create(context.Background(), actor, id, ""); err != nil {
		t.Fatalf("failed to create organization %q: %v", raw, err)
	}
	f.barrier(t)
	return id
}

func mustUserID(t *testing.T, raw string) ident.UserID {
	t.Helper()
	id, err := ident.NewUserID(raw)
	if err != nil {
		t.Fatalf("failed to parse user id %q: %v", raw, err)
	}
	return id
}

func mustProjectID(t *testing.T, raw string) ident.ProjectID {
	t.Helper()
	id, err := ident.NewProjectID(raw)
	if err != nil {
		t.Fatalf("failed to parse project id %q: %v", raw, err)
	}
	return id
}
