package domain

import (
	"time"
)

// Device is a browser that holds its own set of persisted slots.
type Device struct {
	DeviceID   string    `json:"device_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdleFor returns how long the device has been inactive as of now.
func (d *Device) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(d.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}

// Expired reports whether the device has been idle for longer than ttl.
func (d *Device) Expired(now time.Time, ttl time.Duration) bool {
	return d.IdleFor(now) > ttl
}
