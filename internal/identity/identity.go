// Package identity provides per-browser device identity primitives.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/vetcare-gate/internal/domain"
	"github.com/ashureev/vetcare-gate/internal/store"
	"github.com/google/uuid"
)

const (
	DeviceCookieName   = "vetcare_device_id"
	TabHeaderName      = "X-VetCare-Tab-ID"
	DefaultTabIDValue  = "default"
	deviceCookieMaxAge = 30 * 24 * time.Hour

	// lastSeenResolution limits how often a busy device's last_seen_at is rewritten.
	lastSeenResolution = time.Minute
)

type contextKey int

const (
	deviceIDKey contextKey = iota
	tabIDKey
)

var tabIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// DeviceIDFromContext extracts the device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// TabIDFromContext extracts the browser tab ID from the request context.
func TabIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tabIDKey).(string); ok {
		return v
	}
	return DefaultTabIDValue
}

// WithDeviceID returns a copy of ctx carrying deviceID.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

func isValidDeviceID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

func sanitizeTabID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !tabIDPattern.MatchString(id) {
		return DefaultTabIDValue
	}
	return id
}

func touchDevice(ctx context.Context, repo store.Repository, deviceID string) error {
	device, err := repo.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	now := time.Now()
	if device == nil {
		return repo.UpsertDevice(ctx, &domain.Device{
			DeviceID:   deviceID,
			LastSeenAt: now,
			CreatedAt:  now,
		})
	}
	if now.Sub(device.LastSeenAt) < lastSeenResolution {
		return nil
	}
	return repo.UpdateLastSeen(ctx, deviceID, now)
}

func setDeviceCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(deviceCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateDeviceID(w http.ResponseWriter, r *http.Request, isDev bool) string {
	if c, err := r.Cookie(DeviceCookieName); err == nil && isValidDeviceID(c.Value) {
		setDeviceCookie(w, c.Value, isDev)
		return c.Value
	}

	id := uuid.NewString()
	setDeviceCookie(w, id, isDev)
	return id
}

func tabIDFromRequest(r *http.Request) string {
	tid := r.Header.Get(TabHeaderName)
	if tid == "" {
		tid = r.URL.Query().Get("tab_id")
	}
	return sanitizeTabID(tid)
}

// Middleware assigns every browser a device ID and records its activity.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := getOrCreateDeviceID(w, r, isDev)

			if err := touchDevice(r.Context(), repo, deviceID); err != nil {
				http.Error(w, `{"error":"failed to register device"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithDeviceID(r.Context(), deviceID)
			ctx = context.WithValue(ctx, tabIDKey, tabIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
