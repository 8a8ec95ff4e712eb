package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Handler upgrades HTTP connections to WebSocket and streams Publisher
// events to each connected dashboard, adapted from the teacher's
// internal/api.WSHandler.
type Handler struct {
	upgrader  websocket.Upgrader
	publisher Publisher
	logger    *slog.Logger
}

// NewHandler creates a Handler broadcasting pub's events.
func NewHandler(pub Publisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		publisher: pub,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and streams events for the
// process name given by the "process_name" query parameter, or every
// event when it is absent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("process_name")
	if key == "" {
		key = GlobalKey
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := h.publisher.Subscribe(key)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.publisher.Unsubscribe(key, ch)
			conn.Close()
		})
	}
	defer cleanup()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.drainReads(conn, cleanup)
	h.writeLoop(conn, ch)
}

// drainReads discards client frames but keeps the read deadline alive
// via pong handling; a read error means the client disconnected.
func (h *Handler) drainReads(conn *websocket.Conn, cleanup func()) {
	defer cleanup()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, ch <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("marshal live event", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
