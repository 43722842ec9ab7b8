// Package dashboard is an output device that fans out inference
// results, audio-dump metadata, and input notifications to connected
// browsers over a websocket hub, adapted from the framework's own
// realtime dashboard plumbing.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// Event is one message pushed to every connected dashboard client.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func (e *Event) marshal() ([]byte, error) { return json.Marshal(e) }

type client struct {
	id       string
	conn     *websocket.Conn
	messages chan []byte
}

// Hub manages dashboard client connections and broadcasts.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	log        *logger.Logger
	mu         sync.RWMutex
}

// NewHub creates a dashboard websocket hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log.WithComponent("dashboard"),
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Debug("dashboard client registered", logger.String("client_id", c.id))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.messages)
			}
			h.mu.Unlock()
			h.log.Debug("dashboard client unregistered", logger.String("client_id", c.id))

		case event := <-h.broadcast:
			data, err := event.marshal()
			if err != nil {
				h.log.Error("failed to marshal dashboard event", logger.Error(err))
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.messages <- data:
				default:
					h.log.Error("dashboard client buffer full, dropping event", logger.String("client_id", c.id))
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.messages)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast queues event for every connected client.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Error("dashboard broadcast channel full, dropping event", logger.String("event_type", event.Type))
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades incoming HTTP requests to dashboard websocket
// connections.
func (h *Hub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, "websocket upgrade failed", http.StatusBadRequest)
			return
		}
		c := &client{id: r.RemoteAddr, conn: conn, messages: make(chan []byte, 256)}
		h.register <- c

		go func() {
			defer func() {
				h.unregister <- c
				_ = c.conn.Close()
			}()
			c.conn.SetReadLimit(1024)
			for {
				if _, _, err := c.conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			for msg := range c.messages {
				_ = c.conn.WriteMessage(websocket.TextMessage, msg)
			}
		}()
	})
}
