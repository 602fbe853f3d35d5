package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// outbound frames buffered per connection; a consumer that falls this
	// far behind gets disconnected instead of stalling the sender
	sendBufferSize = 16
	writeDeadline  = 10 * time.Second
)

type changeFrame struct {
	Ref    string `json:"ref"`
	Change string `json:"change"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan changeFrame
}

// Hub tracks the live WebSocket connections of logged-in UI clients. It is
// both a Notifier and the registry's source of truth for which users still
// have an active session.
type Hub struct {
	mu    sync.Mutex
	conns map[string]map[*hubClient]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*hubClient]struct{})}
}

var _ Notifier = (*Hub)(nil)

// Notify queues one frame to every connection the user has. Sends never
// block: a connection whose buffer is full is closed and dropped.
func (h *Hub) Notify(userID string, ref string, change ChangeType) {
	frame := changeFrame{Ref: ref, Change: string(change)}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.conns[userID] {
		select {
		case client.send <- frame:
		default:
			slog.Warn("(*Hub).Notify: client too slow, dropping connection", "userID", userID)
			client.conn.Close()
		}
	}
}

// Serve owns the connection until the peer goes away. It blocks, so route
// handlers call it as the last thing they do.
func (h *Hub) Serve(userID string, conn *websocket.Conn) {
	client := &hubClient{
		conn: conn,
		send: make(chan changeFrame, sendBufferSize),
	}
	h.add(userID, client)
	go client.writePump()

	// inbound frames carry nothing; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(userID, client)
}

// ActiveUserIDs lists users with at least one live connection. The sync
// registry's global task prunes jobs of users not in this list.
func (h *Hub) ActiveUserIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	userIDs := make([]string, 0, len(h.conns))
	for userID, clients := range h.conns {
		if len(clients) > 0 {
			userIDs = append(userIDs, userID)
		}
	}
	return userIDs
}

// SessionCount reports the total number of live connections.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, clients := range h.conns {
		count += len(clients)
	}
	return count
}

// Shutdown closes every connection. Serve calls unwind on their own.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.conns {
		for client := range clients {
			client.conn.Close()
		}
	}
}

func (h *Hub) add(userID string, client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*hubClient]struct{})
	}
	h.conns[userID][client] = struct{}{}
}

func (h *Hub) remove(userID string, client *hubClient) {
	h.mu.Lock()
	delete(h.conns[userID], client)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
	h.mu.Unlock()
	// no sender can reach the client once it left the map
	close(client.send)
	client.conn.Close()
}

func (c *hubClient) writePump() {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.conn.WriteJSON(frame); err != nil {
			c.conn.Close()
			// keep draining so Notify's buffered sends never linger
			continue
		}
	}
}
