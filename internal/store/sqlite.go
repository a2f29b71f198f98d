package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/vetcare-gate/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	slotMu sync.Mutex // serializes slot writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers while a slot is being written.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen_at);

	CREATE TABLE IF NOT EXISTS slots (
		device_id TEXT NOT NULL,
		slot_key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (device_id, slot_key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetDevice retrieves a device by its ID.
func (s *SQLiteStore) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	query := `SELECT device_id, last_seen_at, created_at FROM devices WHERE device_id = ?`

	var device domain.Device
	var lastSeen, createdAt int64
	err := s.db.QueryRowContext(ctx, query, deviceID).Scan(&device.DeviceID, &lastSeen, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan device row: %w", err)
	}

	device.LastSeenAt = time.Unix(lastSeen, 0)
	device.CreatedAt = time.Unix(createdAt, 0)
	return &device, nil
}

// UpsertDevice creates or updates a device record.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, device *domain.Device) error {
	query := `
	INSERT INTO devices (device_id, last_seen_at, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at`

	_, err := s.db.ExecContext(ctx, query, device.DeviceID, device.LastSeenAt.Unix(), device.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a device.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE devices SET last_seen_at = ? WHERE device_id = ?`, lastSeen.Unix(), deviceID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "device_id", deviceID)
	}
	return nil
}

// GetExpiredDevices retrieves devices that have been idle for longer than ttl.
func (s *SQLiteStore) GetExpiredDevices(ctx context.Context, ttl time.Duration) ([]*domain.Device, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `SELECT device_id, last_seen_at, created_at FROM devices WHERE last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query expired devices: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired devices rows", "error", closeErr)
		}
	}()

	var devices []*domain.Device
	for rows.Next() {
		var device domain.Device
		var lastSeen, createdAt int64
		if err := rows.Scan(&device.DeviceID, &lastSeen, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expired device row: %w", err)
		}
		device.LastSeenAt = time.Unix(lastSeen, 0)
		device.CreatedAt = time.Unix(createdAt, 0)
		devices = append(devices, &device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired devices: %w", err)
	}
	return devices, nil
}

// DeleteDevice removes a device record.
func (s *SQLiteStore) DeleteDevice(ctx context.Context, deviceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	return nil
}

// GetSlot returns the value of a device slot.
func (s *SQLiteStore) GetSlot(ctx context.Context, deviceID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM slots WHERE device_id = ? AND slot_key = ?`, deviceID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get slot %s: %w", key, err)
	}
	return value, true, nil
}

// SetSlot creates or replaces a device slot.
func (s *SQLiteStore) SetSlot(ctx context.Context, deviceID, key, value string) error {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	query := `
	INSERT INTO slots (device_id, slot_key, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(device_id, slot_key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, deviceID, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("set slot %s: %w", key, err)
	}
	return nil
}

// DeleteSlot removes a device slot.
func (s *SQLiteStore) DeleteSlot(ctx context.Context, deviceID, key string) error {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE device_id = ? AND slot_key = ?`, deviceID, key); err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

// DeleteDeviceSlots removes all slots of a device.
func (s *SQLiteStore) DeleteDeviceSlots(ctx context.Context, deviceID string) error {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE device_id = ?`, deviceID); err != nil {
		return fmt.Errorf("delete device slots: %w", err)
	}
	return nil
}
