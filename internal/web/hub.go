package web

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"Tale-Weaver/server/internal/models"
)

// TurnEvent is pushed to a user's connected clients whenever a turn is
// durably appended to one of their chats.
type TurnEvent struct {
	UserID uint        `json:"-"`
	ChatID string      `json:"chat_id"`
	Turn   models.Turn `json:"turn"`
}

// Client represents one WebSocket connection of a logged-in user.
type Client struct {
	ID     string
	UserID uint
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *TurnHub
	closed atomic.Bool
}

// TurnHub fans appended turns out to the owning user's WebSocket
// clients. Other users never see them: namespaces are private.
type TurnHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan TurnEvent
	mu         sync.RWMutex
}

func NewTurnHub() *TurnHub {
	return &TurnHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan TurnEvent, 1000),
	}
}

// Run starts the hub's event loop.
func (h *TurnHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastTurn(event)
		}
	}
}

func (h *TurnHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	log.Printf("[Hub] client connected: %s (total: %d)", client.ID, len(h.clients))

	go client.writePump()
}

func (h *TurnHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		log.Printf("[Hub] client disconnected: %s (total: %d)", client.ID, len(h.clients))
	}
}

func (h *TurnHub) broadcastTurn(event TurnEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(map[string]interface{}{
		"type":    "turn",
		"chat_id": event.ChatID,
		"turn":    event.Turn,
		"time":    time.Now().Unix(),
	})
	if err != nil {
		log.Printf("[Hub] failed to marshal turn event: %v", err)
		return
	}

	for _, client := range h.clients {
		if client.UserID != event.UserID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			log.Printf("[Hub] client send buffer full: %s", client.ID)
		}
	}
}

// Broadcast queues a turn event for delivery. Drops the event if the
// hub is saturated; the durable copy is already in the chat file.
func (h *TurnHub) Broadcast(event TurnEvent) {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("[Hub] broadcast channel full, dropping turn event")
	}
}

// GetClientCount returns the number of connected clients.
func (h *TurnHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.closed.Store(true)
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Client] error writing to %s: %v", c.ID, err)
				c.closed.Store(true)
				return
			}

		case <-ticker.C:
			if c.closed.Load() {
				return
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed.Store(true)
				return
			}
		}
	}
}

// Close closes the client connection once.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.Conn.Close()
}

// readPump drains the connection and unregisters on close.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Client] unexpected close from %s: %v", c.ID, err)
			}
			break
		}
	}
}
