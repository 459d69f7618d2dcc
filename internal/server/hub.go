package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"
)

const clientSendDepth = 16

// Event is one message on the status feed.
type Event struct {
	Type   string              `json:"type"`
	Status types.SessionStatus `json:"status"`
}

// Hub fans session status snapshots out to WebSocket subscribers. Publish
// never blocks: a subscriber that cannot keep up loses intermediate
// snapshots, and the next one supersedes them anyway.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    *types.SessionStatus
}

type client struct {
	send chan Event
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// Publish implements the session notifier: every state transition lands
// here.
func (h *Hub) Publish(status types.SessionStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = &status
	event := Event{Type: "status", Status: status}
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			// Slow subscriber; it will catch up on the next transition.
		}
	}
}

// ServeHTTP upgrades the request and streams status events until the peer
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{send: make(chan Event, clientSendDepth)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- Event{Type: "status", Status: *h.last}
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.reader(conn, done)
	h.writer(conn, c, done)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// reader drains the connection so pings and close frames are processed. The
// feed is one-way; inbound payloads are ignored.
func (h *Hub) reader(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writer is the sole writer to the connection.
func (h *Hub) writer(conn *websocket.Conn, c *client, done <-chan struct{}) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()

	for {
		select {
		case <-done:
			return
		case event := <-c.send:
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
