// Package wshub fans out alert events and scene updates to dashboard
// websocket clients. Adapted from the teacher's internal/websocket.Hub:
// same register/unregister/broadcast channel trio and per-client
// read/write pump pair, generalized from an echo/test hub to a
// one-directional fan-out of core.AlertEvent and scene updates (spec.md
// names this HTTP surface's job as "frame, stream, scene, rules, alerts,
// health" — a websocket push of the same alert/scene data is the natural
// companion to the polling endpoints, not a new data source).
package wshub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MessageType distinguishes the two kinds of push this hub sends.
type MessageType string

const (
	MessageAlert MessageType = "alert"
	MessageScene MessageType = "scene_update"
)

// Message is one push frame delivered to every connected client.
type Message struct {
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub owns the client set and the broadcast fan-out loop.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	log        zerolog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
	id   string
}

// New creates a Hub. Call Run in its own goroutine to start the fan-out
// loop.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log,
	}
}

// Run drives the hub's register/unregister/broadcast loop; it never
// returns.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.removeClient(c)
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.mu.RUnlock()
					h.removeClient(c)
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
}

// BroadcastAlert pushes an alert event to every connected client.
func (h *Hub) BroadcastAlert(data interface{}) {
	h.send(Message{Type: MessageAlert, Data: data, Timestamp: time.Now().UTC()})
}

// BroadcastScene pushes a scene update to every connected client.
func (h *Hub) BroadcastScene(data interface{}) {
	h.send(Message{Type: MessageScene, Data: data, Timestamp: time.Now().UTC()})
}

func (h *Hub) send(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn().Msg("wshub broadcast queue full, dropping message")
	}
}

// ClientCount reports how many dashboard clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades r to a websocket connection and registers it as a
// push-only client (inbound frames are read and discarded; this hub has
// nothing for a dashboard client to tell it).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	id := r.URL.Query().Get("client_id")
	if id == "" {
		id = time.Now().UTC().Format("20060102T150405.000000000")
	}

	c := &client{hub: h, conn: conn, send: make(chan Message, 64), id: id}
	h.register <- c

	go c.writePump()
	go c.readPump()
	return nil
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

func (c *client) readPump() {
	defer func() { c.hub.unregister <- c }()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
