package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/vetcare-gate/internal/domain"
)

// Event reports the session state of one role on one device.
type Event struct {
	DeviceID      string           `json:"-"`
	Role          domain.Role      `json:"role"`
	Authenticated bool             `json:"authenticated"`
	User          *domain.Identity `json:"user"`
}

// Notifier receives an Event after every operation that may change state.
type Notifier interface {
	Notify(Event)
}

// StorageFor returns the storage scoped to a device.
type StorageFor func(deviceID string) Storage

// Sessions is the pair of independent role stores owned by one device.
type Sessions struct {
	User  *Store
	Admin *Store
}

// Get returns the store of role, or nil for an unknown role.
func (s *Sessions) Get(role domain.Role) *Store {
	switch role {
	case domain.RoleUser:
		return s.User
	case domain.RoleAdmin:
		return s.Admin
	default:
		return nil
	}
}

// All returns both stores in role order.
func (s *Sessions) All() []*Store {
	return []*Store{s.User, s.Admin}
}

// Authenticated reports whether any role is signed in.
func (s *Sessions) Authenticated() bool {
	return s.User.IsAuthenticated() || s.Admin.IsAuthenticated()
}

// Registry is the application-wide owner of every device's sessions.
type Registry struct {
	storageFor StorageFor
	logger     *slog.Logger

	mu       sync.Mutex
	devices  map[string]*Sessions
	notifier Notifier
}

// NewRegistry creates an empty registry.
func NewRegistry(storageFor StorageFor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		storageFor: storageFor,
		logger:     logger,
		devices:    make(map[string]*Sessions),
	}
}

// SetNotifier installs the receiver of session events.
func (r *Registry) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// For returns the sessions of deviceID, rehydrating them on first use. The
// device stays cached until evicted.
func (r *Registry) For(ctx context.Context, deviceID string) *Sessions {
	r.mu.Lock()
	s, ok := r.devices[deviceID]
	r.mu.Unlock()
	if ok {
		return s
	}

	created := r.load(ctx, deviceID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.devices[deviceID]; ok {
		return s
	}
	r.devices[deviceID] = created
	return created
}

// Lookup returns the sessions of deviceID. A device with no signed-in role
// is rehydrated but not cached, so anonymous traffic does not grow the
// registry.
func (r *Registry) Lookup(ctx context.Context, deviceID string) *Sessions {
	r.mu.Lock()
	s, ok := r.devices[deviceID]
	r.mu.Unlock()
	if ok {
		return s
	}

	s = r.load(ctx, deviceID)
	if !s.Authenticated() {
		return s
	}
	return r.settle(ctx, deviceID, s)
}

// Login authenticates role on deviceID.
func (r *Registry) Login(ctx context.Context, deviceID string, role domain.Role, email, password string) bool {
	s := r.Lookup(ctx, deviceID)
	store := s.Get(role)
	if store == nil {
		return false
	}
	if !store.Login(ctx, email, password) {
		return false
	}
	r.settle(ctx, deviceID, s)
	r.logger.Info("Login succeeded", "device_id", deviceID, "role", string(role))
	r.notify(deviceID, store)
	return true
}

// Logout clears role on deviceID.
func (r *Registry) Logout(ctx context.Context, deviceID string, role domain.Role) {
	s := r.Lookup(ctx, deviceID)
	store := s.Get(role)
	if store == nil {
		return
	}
	store.Logout(ctx)
	r.settle(ctx, deviceID, s)
	r.logger.Info("Logged out", "device_id", deviceID, "role", string(role))
	r.notify(deviceID, store)
}

// Refresh re-reads both persisted slots of deviceID.
func (r *Registry) Refresh(ctx context.Context, deviceID string) *Sessions {
	s := r.Lookup(ctx, deviceID)
	for _, store := range s.All() {
		store.Rehydrate(ctx)
	}
	s = r.settle(ctx, deviceID, s)
	for _, store := range s.All() {
		r.notify(deviceID, store)
	}
	return s
}

// Snapshot returns the current state of both roles on deviceID.
func (r *Registry) Snapshot(ctx context.Context, deviceID string) []Event {
	s := r.Lookup(ctx, deviceID)
	events := make([]Event, 0, 2)
	for _, store := range s.All() {
		events = append(events, eventFor(deviceID, store))
	}
	return events
}

// Evict drops the cached sessions of deviceID. Persisted slots are untouched.
func (r *Registry) Evict(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.devices, deviceID)
}

// Len returns the number of devices with cached sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

func (r *Registry) load(ctx context.Context, deviceID string) *Sessions {
	storage := r.storageFor(deviceID)
	logger := r.logger.With("device_id", deviceID)
	return &Sessions{
		User:  NewStore(ctx, domain.UserRole, storage, logger),
		Admin: NewStore(ctx, domain.AdminRole, storage, logger),
	}
}

// settle caches s while any role of deviceID is signed in and drops it once
// none is. When another instance is already cached, that one is re-read from
// the slots and returned.
func (r *Registry) settle(ctx context.Context, deviceID string, s *Sessions) *Sessions {
	active := s.Authenticated()

	r.mu.Lock()
	cur, ok := r.devices[deviceID]
	switch {
	case !ok && active:
		r.devices[deviceID] = s
	case ok && cur == s && !active:
		delete(r.devices, deviceID)
	}
	r.mu.Unlock()

	if !ok || cur == s {
		return s
	}
	for _, store := range cur.All() {
		store.Rehydrate(ctx)
	}
	return cur
}

func (r *Registry) notify(deviceID string, store *Store) {
	r.mu.Lock()
	n := r.notifier
	r.mu.Unlock()
	if n != nil {
		n.Notify(eventFor(deviceID, store))
	}
}

func eventFor(deviceID string, store *Store) Event {
	ev := Event{DeviceID: deviceID, Role: store.Role().Role}
	if user, ok := store.CurrentUser(); ok {
		ev.Authenticated = true
		ev.User = &user
	}
	return ev
}
