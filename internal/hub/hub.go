// Package hub pushes team orchestration events to connected websocket
// clients. Delivery is best-effort: slow clients drop messages, and nothing
// here ever feeds back into the durable journal.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
)

// Event is the wire envelope for one pushed notification.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type Hub struct {
	token      string
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	mu         sync.RWMutex
	running    atomic.Bool
	runCtx     atomic.Value
}

func New(token string) *Hub {
	return &Hub{
		token:      token,
		clients:    make(map[string]*client),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan []byte, 256),
	}
}

func (h *Hub) getContext() context.Context {
	if ctx, ok := h.runCtx.Load().(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.runCtx.Store(ctx)
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*client)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			go c.writePump(h.getContext())
			go c.readPump(h.getContext())
			slog.Debug("websocket client connected", "client", c.id, "total", h.ClientCount())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			slog.Debug("websocket client disconnected", "client", c.id, "total", h.ClientCount())

		case data := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- data:
				default:
					slog.Debug("client send buffer full, dropping event", "client", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades an authenticated request and registers the
// client. The token travels as a query parameter because browsers cannot
// set headers on websocket dials.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	select {
	case h.register <- newClient(conn, h):
	default:
		slog.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
	}
}

// Publish broadcasts one event to every connected client. A full broadcast
// queue drops the event rather than blocking the caller.
func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(Event{Event: event, Payload: payload})
	if err != nil {
		slog.Warn("failed to encode event", "event", event, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Debug("broadcast queue full, dropping event", "event", event)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
