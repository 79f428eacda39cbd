package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"github.com/kurobon/vaultsync/internal/state"
)

// Event types pushed to websocket clients.
const (
	EventFileChanged = "file-changed"
	EventCommand     = "command"
)

const writeWait = 5 * time.Second

// Event is one message on /api/events.
type Event struct {
	Type  string `json:"type"`
	Vault string `json:"vault"`
	Data  any    `json:"data,omitempty"`
}

// FileChangedData lists vault-relative paths changed during one quiet period.
type FileChangedData struct {
	Paths []string `json:"paths"`
}

// CommandData reports a finished command.
type CommandData struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: localOrigin,
}

// Hub fans events out to connected websocket clients. Slow or broken clients are
// dropped; a full queue drops the event.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool
	broadcast chan Event
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Event, 256),
	}
}

// Run delivers queued events until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.broadcast:
			h.deliver(ev)
		}
	}
}

func (h *Hub) deliver(ev Event) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteJSON(ev); err != nil {
			logger.WithError(err).Debug("dropping websocket client")
			delete(h.clients, client)
			_ = client.Close()
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		_ = client.Close()
		delete(h.clients, client)
	}
}

// Publish queues ev without blocking.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		logger.WithField("type", ev.Type).Warn("event queue full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Client messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.clientsMu.Unlock()
	logger.WithField("clients", h.ClientCount()).Debug("websocket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	delete(h.clients, conn)
	h.clientsMu.Unlock()
	_ = conn.Close()
}

func (s *Server) publishCommand(session *state.Session, name string, err error) {
	data := CommandData{Command: name, OK: err == nil}
	if err != nil {
		data.Error = err.Error()
	}
	s.hub.Publish(Event{Type: EventCommand, Vault: session.Path, Data: data})
}
