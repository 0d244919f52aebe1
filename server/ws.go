package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout    = 5 * time.Second
	wsClientQueueSize = 16
)

var overlayUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The overlay is a local browser source; origin checks are handled by
	// the CORS layer for the REST surface, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// overlayHub fans snapshot payloads out to connected overlay pages. A client
// that cannot keep up is dropped rather than allowed to stall the writer.
type overlayHub struct {
	mu      sync.Mutex
	clients map[*overlayClient]struct{}
}

type overlayClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newOverlayHub() *overlayHub {
	return &overlayHub{clients: make(map[*overlayClient]struct{})}
}

// Broadcast queues data for every connected client. It never blocks: a client
// with a full send queue is disconnected.
func (h *overlayHub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Count reports the number of connected overlay clients.
func (h *overlayHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *overlayHub) add(c *overlayClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *overlayHub) remove(c *overlayClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// HandleOverlayWS upgrades the connection and streams overlay snapshots to
// the browser source. The first frame is the current snapshot so a freshly
// opened overlay renders immediately.
func (h *Handlers) HandleOverlayWS(w http.ResponseWriter, r *http.Request) {
	conn, err := overlayUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("overlay websocket upgrade failed", slog.Any("err", err))
		return
	}

	client := &overlayClient{conn: conn, send: make(chan []byte, wsClientQueueSize)}
	h.hub.add(client)
	slog.Info("overlay client connected", slog.String("remote", r.RemoteAddr))

	if h.deps.Writer != nil {
		if snap, err := h.deps.Writer.SnapshotJSON(); err == nil {
			select {
			case client.send <- snap:
			default:
			}
		}
	}

	go client.writePump()
	client.readPump(h.hub)
}

func (c *overlayClient) writePump() {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

// readPump discards inbound frames; it exists so close frames and transport
// errors are noticed and the client is unregistered.
func (c *overlayClient) readPump(hub *overlayHub) {
	defer func() {
		hub.remove(c)
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
