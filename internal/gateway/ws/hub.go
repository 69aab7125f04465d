package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/executor"
	"github.com/dohr-michael/taskd/internal/tasks"
)

// TaskService is the executor surface exposed over the socket.
type TaskService interface {
	Submit(taskType string, input json.RawMessage, opts tasks.SubmitOptions) (string, error)
	Cancel(id string) bool
	Pause(id string) bool
	Resume(id string) bool
	UpdatePriority(id string, priority tasks.TaskPriority) bool
	Result(id string) (tasks.Snapshot, bool)
	Wait(ctx context.Context, id string) (tasks.Snapshot, error)
	QueueStatus() executor.QueueStatus
}

// Hub tracks connected clients and pushes bus events to them. Events
// carrying an owner reach only clients connected as that owner; owner-less
// events reach everyone.
type Hub struct {
	svc         TaskService
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a hub fed by bus.
func NewHub(bus *events.Bus, svc TaskService) *Hub {
	h := &Hub{
		svc:     svc,
		clients: make(map[*Client]struct{}),
	}
	h.unsubscribe = bus.Subscribe(h.broadcast)
	return h
}

// broadcast encodes e once and queues it for every client allowed to see it.
func (h *Hub) broadcast(e events.Event) {
	frame, err := NewEventFrame(e)
	if err != nil {
		slog.Error("ws event frame", "type", e.Type, "error", err)
		return
	}
	data, err := MarshalFrame(frame)
	if err != nil {
		slog.Error("ws event frame", "type", e.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if e.Owner != "" && c.owner != e.Owner {
			continue
		}
		if !c.queue(data) {
			slog.Debug("ws client too slow, event dropped", "owner", c.owner, "type", e.Type)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	slog.Info("ws client connected", "owner", c.owner, "clients", len(h.clients))
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	slog.Info("ws client disconnected", "owner", c.owner, "clients", len(h.clients))
}

// ServeWS upgrades the request and serves the connection until it closes.
// The connection owner comes from the request context, then the owner query
// parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	owner := events.OwnerFromContext(r.Context())
	if owner == "" {
		owner = r.URL.Query().Get("owner")
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // any origin
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	c := newClient(h, conn, owner)
	if !h.add(c) {
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}
	c.serve(r.Context())
}

// Close stops event delivery and closes every connection.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}
