package account

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/teamstatus-dev/backend/internal/bus"
	"github.com/teamstatus-dev/backend/internal/ident"
	"github.com/teamstatus-dev/backend/internal/schema"
	"github.com/teamstatus-dev/backend/internal/store"
	"gorm.io/gorm"
)

type fixture struct {
	service *Service
	store   *store.Client
	bus     *bus.Bus
	clock   *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:account_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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

	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	client, err := store.NewClient(store.ClientConfig{
		Database: db,
		Indexes:  schema.Indexes(),
		Clock:    clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to construct store client: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})

	eventBus := bus.New()
	service, err := NewService(ServiceConfig{Store: client, Bus: eventBus, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct account service: %v", err)
	}
	return &fixture{service: service, store: client, bus: eventBus, clock: clock}
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
