package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/stephens/tubpanel/internal/log"
	"github.com/stephens/tubpanel/internal/storage"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 4 * 1024
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // panels are served from the device itself or run on the LAN
	},
}

// Client represents a connected panel
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	limiter *rate.Limiter
	logger  *log.Logger

	mu     sync.Mutex
	send   chan interface{}
	closed bool
}

// enqueue queues a message for the write pump. It drops the message if the buffer is full.
func (c *Client) enqueue(msg interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub manages WebSocket clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan interface{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan interface{}, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Debug("WebSocket client %s connected (%d total)", client.id, n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Debug("WebSocket client %s disconnected (%d total)", client.id, n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.enqueue(message) {
					log.Warn("WebSocket client %s too slow, dropping it", client.id)
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades a panel connection, greets it and starts its pumps
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("WebSocket upgrade error: %v", err)
		return
	}

	id := uuid.NewString()
	limit := rate.Limit(s.opts.ClientRateLimit)
	if s.opts.ClientRateLimit <= 0 {
		limit = rate.Inf
	}
	burst := s.opts.ClientBurst
	if burst < 1 {
		burst = 1
	}
	client := &Client{
		id:      id,
		hub:     s.hub,
		conn:    conn,
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.WithFields(map[string]interface{}{"client": id, "remote": r.RemoteAddr}),
		send:    make(chan interface{}, sendBuffer),
	}

	client.logger.Info("Client: CONNECTED")
	if s.store != nil {
		if err := s.store.LogEvent(storage.EventSourceSystem, storage.EventTypeConnection, "Panel connected",
			map[string]string{"client": id, "remote": r.RemoteAddr}); err != nil {
			client.logger.Warn("Failed to log connection: %v", err)
		}
	}

	// greeting goes ahead of any broadcast
	for _, msg := range s.controller.Greeting() {
		client.enqueue(msg)
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s.controller)
}

// readPump reads messages from the WebSocket and hands them to the controller
func (c *Client) readPump(controller Controller) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		c.logger.Info("Client: DISCONNECT")
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("WebSocket read error: %v", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !c.limiter.Allow() {
			c.logger.Debug("Rate limited, dropping: %s", message)
			continue
		}

		c.logger.Debug("Receive: %s", message)
		replies, err := controller.HandleMessage(c.id, message)
		if err != nil {
			c.logger.Debug("Ignoring message: %v", err)
			continue
		}
		for _, reply := range replies {
			c.enqueue(reply)
		}
	}
}

// writePump writes messages to the WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal WebSocket message: %v", err)
				continue
			}

			c.logger.Debug("Sending: %s", data)
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
