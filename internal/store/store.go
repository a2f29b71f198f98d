// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/vetcare-gate/internal/domain"
)

// SlotBackend persists session slots, one namespace per device.
type SlotBackend interface {
	// GetSlot returns the stored value and whether the slot exists.
	GetSlot(ctx context.Context, deviceID, key string) (string, bool, error)

	// SetSlot creates or replaces a slot value.
	SetSlot(ctx context.Context, deviceID, key, value string) error

	// DeleteSlot removes a slot. Removing a missing slot is not an error.
	DeleteSlot(ctx context.Context, deviceID, key string) error

	// DeleteDeviceSlots removes every slot of a device.
	DeleteDeviceSlots(ctx context.Context, deviceID string) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Repository defines the interface for persisting devices and their slots.
type Repository interface {
	SlotBackend

	// GetDevice retrieves a device by ID. It returns nil, nil when not found.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// UpsertDevice creates or updates a device record.
	UpsertDevice(ctx context.Context, device *domain.Device) error

	// UpdateLastSeen updates the last_seen_at timestamp for a device.
	UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error

	// GetExpiredDevices retrieves devices idle for longer than ttl.
	GetExpiredDevices(ctx context.Context, ttl time.Duration) ([]*domain.Device, error)

	// DeleteDevice removes a device record.
	DeleteDevice(ctx context.Context, deviceID string) error
}

// DeviceSlots is the key-value view of one device's slots.
type DeviceSlots struct {
	backend  SlotBackend
	deviceID string
}

// ForDevice scopes backend to deviceID.
func ForDevice(backend SlotBackend, deviceID string) *DeviceSlots {
	return &DeviceSlots{backend: backend, deviceID: deviceID}
}

// Get returns the value stored under key.
func (d *DeviceSlots) Get(ctx context.Context, key string) (string, bool, error) {
	return d.backend.GetSlot(ctx, d.deviceID, key)
}

// Set stores value under key.
func (d *DeviceSlots) Set(ctx context.Context, key, value string) error {
	return d.backend.SetSlot(ctx, d.deviceID, key, value)
}

// Remove deletes key.
func (d *DeviceSlots) Remove(ctx context.Context, key string) error {
	return d.backend.DeleteSlot(ctx, d.deviceID, key)
}
