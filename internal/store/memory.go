package store

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/vetcare-gate/internal/domain"
)

// MemoryStore implements Repository in process memory. Nothing survives a
// restart; it backs SLOT_BACKEND=memory and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
	slots   map[string]map[string]string
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]domain.Device),
		slots:   make(map[string]map[string]string),
	}
}

func (m *MemoryStore) GetDevice(_ context.Context, deviceID string) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *MemoryStore) UpsertDevice(_ context.Context, device *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.devices[device.DeviceID]; ok {
		existing.LastSeenAt = device.LastSeenAt
		m.devices[device.DeviceID] = existing
		return nil
	}
	m.devices[device.DeviceID] = *device
	return nil
}

func (m *MemoryStore) UpdateLastSeen(_ context.Context, deviceID string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[deviceID]; ok {
		d.LastSeenAt = lastSeen
		m.devices[deviceID] = d
	}
	return nil
}

func (m *MemoryStore) GetExpiredDevices(_ context.Context, ttl time.Duration) ([]*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var expired []*domain.Device
	for _, d := range m.devices {
		if d.Expired(now, ttl) {
			expired = append(expired, &d)
		}
	}
	return expired, nil
}

func (m *MemoryStore) DeleteDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, deviceID)
	return nil
}

func (m *MemoryStore) GetSlot(_ context.Context, deviceID, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.slots[deviceID][key]
	return v, ok, nil
}

func (m *MemoryStore) SetSlot(_ context.Context, deviceID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slots[deviceID] == nil {
		m.slots[deviceID] = make(map[string]string)
	}
	m.slots[deviceID][key] = value
	return nil
}

func (m *MemoryStore) DeleteSlot(_ context.Context, deviceID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slots, ok := m.slots[deviceID]; ok {
		delete(slots, key)
		if len(slots) == 0 {
			delete(m.slots, deviceID)
		}
	}
	return nil
}

func (m *MemoryStore) DeleteDeviceSlots(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, deviceID)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
