package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestClient(t *testing.T, cfg ClientConfig) *Client {
	t.Helper()

	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access raw connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	cfg.Database = db
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})
	return client
}

func mustBarrier(t *testing.T, client *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Barrier(ctx); err != nil {
		t.Fatalf("barrier failed: %v", err)
	}
}

func mustPutIfAbsent(t *testing.T, client *Client, item Item) {
	t.Helper()
	if err := client.PutIfAbsent(context.Background(), item); err != nil {
		t.Fatalf("put if absent failed: %v", err)
	}
}
