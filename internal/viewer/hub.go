package viewer

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"webkvm/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameHost,
}

// sameHost accepts only pages served by this viewer. Clients that send no
// Origin (non-browser tools) are let through.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Host, r.Host) {
		log.Warnf("WS: Rejected connection from foreign origin %s", origin)
		return false
	}
	return true
}

// EventHandler receives messages sent by viewer pages
type EventHandler interface {
	HandleViewerEvent(msg protocol.Message) error
}

// Hub handles viewer page connections and broadcasting. It is the
// pointer-lock platform of the sessions: lock requests are forwarded to
// every connected page.
type Hub struct {
	handler EventHandler

	clients    map[*client]bool
	clientsMu  sync.Mutex
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	once       sync.Once
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ip   string
}

// NewHub creates a hub. Run must be started before anything is broadcast.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
	}
}

// SetHandler sets where page messages go
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// Run serves the hub until ctx ends
func (h *Hub) Run(ctx context.Context) {
	defer h.once.Do(func() { close(h.shutdown) })
	for {
		select {
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.clientsMu.Unlock()
			log.Infof("WS: Viewer connected from %s. Total viewers: %d", c.ip, n)

		case c := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				log.Infof("WS: Viewer from %s disconnected. Total viewers: %d", c.ip, len(h.clients))
			}
			h.clientsMu.Unlock()

		case data := <-h.broadcast:
			h.broadcastMessage(data)

		case <-ctx.Done():
			h.clientsMu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.clientsMu.Unlock()
			return
		}
	}
}

// Clients returns the number of connected pages
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcastMessage(data []byte) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Warnf("WS: Viewer %s is not keeping up, dropping it", c.ip)
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// Broadcast sends msg to every connected page. It returns once the hub
// has the message, or immediately after the hub stopped.
func (h *Hub) Broadcast(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.WithError(err).Error("WS: Failed to encode broadcast message")
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.shutdown:
	}
}

func (h *Hub) broadcastType(t protocol.MessageType, payload interface{}) {
	msg, err := protocol.New(t, payload)
	if err != nil {
		log.WithError(err).Errorf("WS: Failed to build %s message", t)
		return
	}
	h.Broadcast(msg)
}

// RequestPointerLock asks the pages to lock the pointer to the canvas
func (h *Hub) RequestPointerLock() {
	h.broadcastType(protocol.TypeRequestLock, nil)
}

// ExitPointerLock asks the pages to release pointer lock
func (h *Hub) ExitPointerLock() {
	h.broadcastType(protocol.TypeExitLock, nil)
}

// NotifyReload tells the pages that the session was rebuilt
func (h *Hub) NotifyReload(reason string) {
	h.broadcastType(protocol.TypeReload, protocol.ReloadPayload{Reason: reason})
}

// serve upgrades the request and registers the page. greeting is sent
// before anything else.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, greeting protocol.Message) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WS: Failed to upgrade connection")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		ip:   r.RemoteAddr,
	}
	if data, err := protocol.Encode(greeting); err == nil {
		c.send <- data
	}

	select {
	case h.register <- c:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump pumps messages from the websocket connection to the handler.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("WS: Read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.handleMessage(data)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handleMessage(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.WithError(err).Debug("WS: Invalid message format")
		return
	}
	if c.hub.handler == nil {
		return
	}
	if err := c.hub.handler.HandleViewerEvent(msg); err != nil {
		log.WithError(err).Debugf("WS: Dropped %s message from %s", msg.Type, c.ip)
	}
}
