package org

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
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:org_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	rosterService, err := roster.NewService(roster.ServiceConfig{Store: client})
	if err != nil {
		t.Fatalf("failed to construct roster service: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Store:  client,
		Bus:    eventBus,
		Roster: rosterService,
		IDs:    ident.NewULIDSource(time.Now),
	})
	if err != nil {
		t.Fatalf("failed to construct org service: %v", err)
	}
	return &fixture{service: service, store: client, bus: eventBus, roster: rosterService}
}

func (f *fixture) barrier(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.store.Barrier(ctx); err != nil {
		t.Fatalf("barrier failed: %v", err)
	}
}

func mustUserID(t *testing.T, raw string) ident.UserID {
	t.Helper()
	id, err := ident.NewUserID(raw)
	if err != nil {
		t.Fatalf("failed to parse user id %q: %v", raw, err)
	}
	return id
}

func mustOrgID(t *testing.T, raw string) ident.OrganizationID {
	t.Helper()
	id, err := ident.NewOrganizationID(raw)
	if err != nil {
		t.Fatalf("failed to parse organization id %q: %v", raw, err)
	}
	return id
}

func mustCreate(t *testing.T, f *fixture, actor ident.UserID, id ident.OrganizationID, name string) Organization {
	t.Helper()
	created, err := f.service.Create(context.Background(), actor, id, name)
	if err != nil {
		t.Fatalf("failed to create organization %q: %v", id.Key(), err)
	}
	f.barrier(t)
	return created
}
