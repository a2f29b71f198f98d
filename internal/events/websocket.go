package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/vetcare-gate/internal/identity"
	"github.com/ashureev/vetcare-gate/internal/session"
	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// WebSocketHandler streams a device's session events to a browser tab.
type WebSocketHandler struct {
	hub           *Hub
	registry      *session.Registry
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new session feed handler.
func NewWebSocketHandler(hub *Hub, registry *session.Registry, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage is a message sent by the browser.
type wsMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	if deviceID == "" {
		http.Error(w, "device not identified", http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	sub := h.hub.Subscribe(deviceID, tabID)
	defer h.hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.writeJSON(ctx, ws, Message{Type: "snapshot", Sessions: h.registry.Snapshot(ctx, deviceID)}); err != nil {
		slog.Debug("Failed to send session snapshot", "error", err, "device_id", deviceID)
		return
	}

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, deviceID)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-sub.C():
			if !ok {
				slog.Info("Session feed closed by server", "device_id", deviceID, "tab_id", tabID)
				_ = ws.Close(websocket.StatusNormalClosure, "device expired")
				return
			}
			if err := h.write(ctx, ws, data); err != nil {
				slog.Debug("Session feed write error", "error", err, "device_id", deviceID)
				return
			}
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, deviceID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "device_id", deviceID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "device_id", deviceID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			if err := h.writeJSON(ctx, ws, Message{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "refresh":
			// Events for both roles arrive through the hub subscription.
			h.registry.Refresh(ctx, deviceID)
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.write(ctx, ws, data)
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
