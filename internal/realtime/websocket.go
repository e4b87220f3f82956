// ABOUTME: WebSocket endpoint streaming conversation events to widget clients
// ABOUTME: Subscribes to the in-memory broadcaster; one socket per conversation

package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// WSHandler upgrades widget connections and streams events for one
// conversation. Ordering across the socket follows the broadcaster; the
// client applies the Seq staleness rule and re-fetches history on reconnect.
type WSHandler struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewWSHandler creates a handler backed by the given broadcaster.
func NewWSHandler(b *Broadcaster, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The widget is embedded on arbitrary customer sites
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "realtime-ws"),
	}
}

// ServeHTTP handles GET ?conversation_id=<id>.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		http.Error(w, "missing conversation_id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, subID := h.broadcaster.Subscribe(ctx, convID)
	defer h.broadcaster.Unsubscribe(convID, subID)

	h.logger.Debug("widget connected", "conversation_id", convID, "sub_id", subID)

	// Reader: consume control frames and detect close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed",
					"conversation_id", convID,
					"error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
