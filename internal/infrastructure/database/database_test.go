package database

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if db.Path() == "" {
		t.Error("Path() is empty")
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(context.Background(), Config{Path: path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()
}

func TestDB_ExecAndQuery(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", "hello"); err != nil {
		t.Fatalf("inserting row: %v", err)
	}

	var v string
	if err := db.QueryRowContext(ctx, "SELECT v FROM t WHERE id = 1").Scan(&v); err != nil {
		t.Fatalf("querying row: %v", err)
	}
	if v != "hello" {
		t.Errorf("v = %q, want %q", v, "hello")
	}
}

func TestDB_CloseIsIdempotentOnNil(t *testing.T) {
	db := &DB{}
	if err := db.Close(); err != nil {
		t.Errorf("Close() on zero DB error: %v", err)
	}
}
