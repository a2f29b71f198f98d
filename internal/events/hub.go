// Package events pushes session state changes to every open tab of a device.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ashureev/vetcare-gate/internal/session"
	"github.com/google/uuid"
)

const subscriberBuffer = 16

// Message is the wire form of everything sent to a tab.
type Message struct {
	Type string `json:"type"`
	*session.Event
	Sessions []session.Event `json:"sessions,omitempty"`
}

// Subscription receives encoded messages for one tab.
type Subscription struct {
	ID       string
	DeviceID string
	TabID    string

	ch   chan []byte
	once sync.Once
}

// C delivers messages until the subscription is closed.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub tracks subscriptions per device.
type Hub struct {
	mu      sync.RWMutex
	devices map[string]map[string]*Subscription
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		devices: make(map[string]map[string]*Subscription),
		logger:  logger,
	}
}

// Subscribe registers a tab of deviceID.
func (h *Hub) Subscribe(deviceID, tabID string) *Subscription {
	sub := &Subscription{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		TabID:    tabID,
		ch:       make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.devices[deviceID]; !ok {
		h.devices[deviceID] = make(map[string]*Subscription)
	}
	h.devices[deviceID][sub.ID] = sub

	h.logger.Debug("Session feed subscribed", "device_id", deviceID, "tab_id", tabID, "subscription_id", sub.ID)
	return sub
}

// Unsubscribe removes and closes sub.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.devices[sub.DeviceID]; ok {
		if _, exists := subs[sub.ID]; exists {
			delete(subs, sub.ID)
			if len(subs) == 0 {
				delete(h.devices, sub.DeviceID)
			}
		}
	}
	sub.close()
}

// CloseDevice closes every subscription of deviceID.
func (h *Hub) CloseDevice(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.devices[deviceID]
	if !ok {
		return
	}
	for _, sub := range subs {
		sub.close()
	}
	delete(h.devices, deviceID)
	h.logger.Info("Session feed closed for device", "device_id", deviceID, "subscriptions", len(subs))
}

// Count returns the number of open subscriptions of deviceID.
func (h *Hub) Count(deviceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices[deviceID])
}

// Notify implements session.Notifier.
func (h *Hub) Notify(ev session.Event) {
	h.Publish(ev.DeviceID, Message{Type: "session", Event: &ev})
}

// Publish sends msg to every subscription of deviceID. Slow subscribers
// that have a full buffer miss the message.
func (h *Hub) Publish(deviceID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode session event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.devices[deviceID] {
		select {
		case sub.ch <- data:
		default:
			h.logger.Warn("Dropping session event for slow subscriber", "device_id", deviceID, "subscription_id", sub.ID)
		}
	}
}
