package chart

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub broadcasts chart events as JSON text frames to websocket subscribers.
// New subscribers first receive the recorded history. A subscriber that
// cannot keep up is dropped rather than slowing the publisher down.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	history func() []types.ChartEvent
	closed  bool
}

var _ interfaces.ChartSink = (*Hub)(nil)

// NewHub creates a hub. history may be nil.
func NewHub(history func() []types.ChartEvent) *Hub {
	return &Hub{clients: map[*client]struct{}{}, history: history}
}

func (h *Hub) Publish(ev types.ChartEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.ErrorWithErr(context.Background(), "Failed to encode chart event", err, "kind", ev.Kind)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropLocked(c)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "WS upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	// History is queued under the lock so nothing published meanwhile
	// can overtake it. The buffer holds all of it plus room for live events.
	var history []types.ChartEvent
	if h.history != nil {
		history = h.history()
	}
	c := &client{conn: conn, send: make(chan []byte, len(history)+sendBuffer)}
	for _, ev := range history {
		msg, err := json.Marshal(ev)
		if err != nil {
			logger.ErrorWithErr(r.Context(), "Failed to encode chart history", err, "kind", ev.Kind)
			continue
		}
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	logger.Debug(r.Context(), "Chart subscriber connected", "remote", r.RemoteAddr)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}
