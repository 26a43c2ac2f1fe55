package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tapowatt/internal/aggregate"
	"github.com/nerrad567/tapowatt/internal/infrastructure/database"
)

// Query limits for history listings.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one persisted reading.
type Entry struct {
	ID        int64             `json:"id"`
	Device    string            `json:"device"`
	Status    string            `json:"status"`
	Reading   aggregate.Reading `json:"reading"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists power readings to SQLite. The poller records one row
// per device per cycle; the API serves them back per device.
type Store struct {
	db *database.DB
}

// NewStore creates a history store over an open database. The schema
// is managed by the embedded migrations.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record persists a single reading.
func (s *Store) Record(ctx context.Context, r aggregate.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding reading for %s: %w", r.Device, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO power_history (device, status, reading, created_at)
		VALUES (?, ?, ?, ?)
	`, r.Device, r.Status, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording reading for %s: %w", r.Device, err)
	}
	return nil
}

// ListByDevice returns the most recent readings for a device, newest
// first. limit <= 0 uses the default; values above the maximum are
// clamped.
func (s *Store) ListByDevice(ctx context.Context, deviceName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device, status, reading, created_at
		FROM power_history
		WHERE device = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, deviceName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history for %s: %w", deviceName, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			payload   string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Device, &e.Status, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Reading); err != nil {
			return nil, fmt.Errorf("decoding stored reading %d: %w", e.ID, err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the retention window and returns
// the number of rows removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM power_history WHERE created_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return removed, nil
}
