package status

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/roster"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"gorm.io/gorm"
)

type fixture struct {
	service *Service
	store   *store.Client
	bus     *bus.Bus
	roster  *roster.Service
	ids     *ident.ULIDSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:status_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	service, err := NewService(ServiceConfig{
		Store: client, Bus: eventBus, Roster: rosterService, IDs: ids,
	})
	if err != nil {
		t.Fatalf("failed to construct status service: %v", err)
	}
	return &fixture{service: service, store: client, bus: eventBus, roster: rosterService, ids: ids}
}

func (f *fixture) barrier(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.store.Barrier(ctx); err != nil {
		t.Fatalf("barrier failed: %v", err)
	}
}

// enroll seeds a project membership row directly.
func (f *fixture) enroll(t *testing.T, user ident.UserID, project ident.ProjectID, role string) {
	t.Helper()
	memberID, err := f.ids.NewID()
	if err != nil {
		t.Fatalf("failed to mint member id: %v", err)
	}
	if err := f.roster.EnrollProjectMember(context.Background(), memberID, project, user, role, time.Now()); err != nil {
		t.Fatalf("failed to enroll %q: %v", user.Key(), err)
	}
	f.barrier(t)
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

func mustCreateStatus(t *testing.T, f *fixture, actor ident.UserID, project ident.ProjectID, message string) Status {
	t.Helper()
	created, err := f.service.Create(context.Background(), actor, CreateInput{Project: project, Message: message})
	if err != nil {
		t.Fatalf("failed to create status: %v", err)
	}
	return created
}
