package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// msPerSecond converts the configured busy timeout to the
	// millisecond unit the driver expects.
	msPerSecond = 1000

	connMaxIdleTime = 30 * time.Minute
)

// Config contains SQLite connection options. These map to the history
// section of config.yaml.
type Config struct {
	// Path is the filesystem path to the database file. The parent
	// directory is created if missing.
	Path string

	// WALMode enables Write-Ahead Logging so reads don't block on the
	// single writer.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a lock, in seconds.
	BusyTimeout int
}

// DB wraps a sql.DB with migration support and lifecycle helpers.
type DB struct {
	*sql.DB
	path string
}

// Open connects to the SQLite database, applying WAL mode and busy
// timeout pragmas via the connection string. The pool is pinned to a
// single connection because SQLite supports only one writer.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, path: cfg.Path}

	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Best effort: the file may not exist until the first write.
	_ = os.Chmod(cfg.Path, filePermissions)

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the connection with a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}
