// Package session owns the authentication state of each role and keeps it
// consistent with the role's persisted slot.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/vetcare-gate/internal/domain"
)

// Storage is the durable key-value slot a Store mirrors its session into.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Store holds at most one authenticated identity for a role. No operation
// returns an error: every failure degrades to unauthenticated.
type Store struct {
	spec    domain.RoleSpec
	storage Storage
	logger  *slog.Logger

	mu   sync.Mutex
	user *domain.Identity
}

// NewStore creates a store for a role and rehydrates it from storage.
func NewStore(ctx context.Context, spec domain.RoleSpec, storage Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		spec:    spec,
		storage: storage,
		logger:  logger.With("role", string(spec.Role), "slot", spec.SlotKey),
	}
	s.Rehydrate(ctx)
	return s
}

// Role returns the role this store authenticates.
func (s *Store) Role() domain.RoleSpec {
	return s.spec
}

// Login authenticates against the role's credential pair. On success the
// session is set and persisted. On failure nothing changes.
func (s *Store) Login(ctx context.Context, email, password string) bool {
	if !s.spec.Credentials.Matches(email, password) {
		s.logger.Debug("Login rejected", "error", domain.ErrInvalidCredentials)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.spec.Identity
	s.user = &user

	raw, err := user.Encode()
	if err != nil {
		s.logger.Warn("Failed to encode session", "error", err)
		return true
	}
	if err := s.storage.Set(ctx, s.spec.SlotKey, raw); err != nil {
		s.logger.Warn("Failed to persist session", "error", err)
	}
	return true
}

// Logout clears the session and its persisted slot.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	if err := s.storage.Remove(ctx, s.spec.SlotKey); err != nil {
		s.logger.Warn("Failed to remove persisted session", "error", err)
	}
}

// IsAuthenticated reports whether the store holds an identity.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// CurrentUser returns the authenticated identity, if any.
func (s *Store) CurrentUser() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return domain.Identity{}, false
	}
	return *s.user, true
}

// Rehydrate replaces the session with whatever valid identity the persisted
// slot holds. Missing, unreadable or malformed slots yield no session.
func (s *Store) Rehydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = s.load(ctx)
}

func (s *Store) load(ctx context.Context) *domain.Identity {
	raw, ok, err := s.storage.Get(ctx, s.spec.SlotKey)
	if err != nil {
		s.logger.Warn("Failed to read persisted session", "error", errors.Join(domain.ErrCorruptSession, err))
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	user, ok, err := domain.DecodeIdentity(raw)
	if !ok {
		s.logger.Warn("Ignoring invalid persisted session", "error", err)
		return nil
	}
	return &user
}
