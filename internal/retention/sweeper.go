// Package retention removes devices that have been idle past their TTL,
// together with their persisted slots and any live session state.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/vetcare-gate/internal/shared"
	"github.com/ashureev/vetcare-gate/internal/store"
)

// CleanupCallback is called for each device after its slots are deleted, so
// anything it re-reads sees an empty device.
type CleanupCallback func(deviceID string)

// Config controls the sweep.
type Config struct {
	TTL      time.Duration
	Interval time.Duration
	// SlotBackend holds the slots when they are not kept in the repository.
	SlotBackend store.SlotBackend
	OnCleanup   []CleanupCallback
}

// Sweeper periodically purges expired devices.
type Sweeper struct {
	repo  store.Repository
	slots store.SlotBackend
	cfg   Config
}

// NewSweeper creates a sweeper. Slots are deleted from cfg.SlotBackend, or
// from repo when none is given.
func NewSweeper(repo store.Repository, cfg Config) *Sweeper {
	slots := cfg.SlotBackend
	if slots == nil {
		slots = repo
	}
	return &Sweeper{repo: repo, slots: slots, cfg: cfg}
}

// withRetry retries op with exponential backoff while SQLite reports
// contention.
func withRetry(ctx context.Context, what, deviceID string, op func(context.Context) error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("Retention: database locked, retrying", "op", what, "device_id", deviceID, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s for %s: %w", what, deviceID, err)
}

// Start runs the sweep every cfg.Interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention sweeper started", "interval", s.cfg.Interval, "ttl", s.cfg.TTL)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Retention sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep removes every device idle for longer than the TTL and returns how
// many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	expired, err := s.repo.GetExpiredDevices(ctx, s.cfg.TTL)
	if err != nil {
		slog.Error("Retention sweeper failed to list expired devices", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	slog.Info("Retention sweeper found expired devices", "count", len(expired))

	removed := 0
	for _, device := range expired {
		if err := withRetry(ctx, "delete slots", device.DeviceID, func(ctx context.Context) error {
			return s.slots.DeleteDeviceSlots(ctx, device.DeviceID)
		}); err != nil {
			slog.Warn("Retention sweeper failed to delete slots", "error", err, "device_id", device.DeviceID)
			continue
		}

		err := withRetry(ctx, "delete device", device.DeviceID, func(ctx context.Context) error {
			return s.repo.DeleteDevice(ctx, device.DeviceID)
		})

		// The slots are gone either way, so cached state must follow.
		for _, cb := range s.cfg.OnCleanup {
			cb(device.DeviceID)
		}

		if err != nil {
			slog.Warn("Retention sweeper failed to delete device", "error", err, "device_id", device.DeviceID)
			continue
		}
		removed++
	}

	slog.Info("Retention sweep completed", "removed", removed)
	return removed
}
