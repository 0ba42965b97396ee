// Package pushchannel gives the Progress Bus an external transport
// (spec §4.L, §6): a websocket endpoint that subscribes a connected
// client to progress events and streams them as they are published.
package pushchannel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/personalrag/ragengine/domain/progress"
)

// writeWait bounds how long a single message write may block before the
// connection is considered dead.
const writeWait = 10 * time.Second

// pingInterval keeps intermediate proxies from closing an idle connection.
const pingInterval = 30 * time.Second

// Subscriber is the Progress Bus surface the push channel depends on.
type Subscriber interface {
	Subscribe(userID string) (<-chan progress.Event, func())
}

// Handler upgrades HTTP connections to websockets and relays one user's
// Progress Bus events to the client until it disconnects.
type Handler struct {
	bus      Subscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New constructs a push-channel Handler. checkOrigin, when nil, accepts
// every origin (the HTTP surface proper is out of scope per spec §1; the
// caller's own CORS/auth middleware is expected to gate access upstream).
func New(bus Subscriber, logger *slog.Logger, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and streams progress events for the
// userID query parameter (empty subscribes to every user's events).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("pushchannel: upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	userID := r.URL.Query().Get("userId")
	events, unsubscribe := h.bus.Subscribe(userID)
	defer unsubscribe()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	// readLoop drains and discards client frames so the connection's
	// control-frame (close/ping) handling keeps running, and signals
	// disconnect by closing done.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := h.writeEvent(conn, event); err != nil {
				h.logger.Debug("pushchannel: write failed, closing", slog.String("error", err.Error()))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, event progress.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

var _ http.Handler = (*Handler)(nil)
