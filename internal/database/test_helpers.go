package database

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// setupTestDB opens a named shared in-memory SQLite database. The shared
// cache plus a single pooled connection keep every query on the same
// in-memory instance.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := NewDB(Config{
		Type:       "sqlite",
		SQLitePath: dsn,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.Conn().SetMaxOpenConns(1)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}
