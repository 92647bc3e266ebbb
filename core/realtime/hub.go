package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"versionvibe/logger"

	"github.com/gorilla/websocket"
)

// Event is one change notification pushed to subscribers of a scope.
// Delivery is at-least-once; consumers deduplicate by payload
// identifier.
type Event struct {
	Entity    string          `json:"entity"` // e.g. "comments"
	Action    string          `json:"action"` // insert, update, delete
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

const (
	EntityComments = "comments"
	EntityPlayer   = "player"
	EntityNotice   = "notice"

	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ActionState    = "state"
	ActionSnapshot = "snapshot"
	ActionCount    = "count"
)

// ProjectScope names the subscription scope for a project's entities.
func ProjectScope(projectID int64) string {
	return fmt.Sprintf("project:%d", projectID)
}

// SessionScope names the subscription scope for a track's live
// review session.
func SessionScope(trackID int64) string {
	return fmt.Sprintf("session:%d", trackID)
}

// Client is one websocket subscriber attached to a scope.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	Scope    string
	UserID   int64
	Username string
}

type scopedMessage struct {
	scope     string
	message   []byte
	excludeID int64
}

// Hub fans change events out to websocket clients and in-process
// subscribers, grouped by scope. One goroutine owns the registries;
// register, unregister and broadcast all flow through its channels.
type Hub struct {
	scopes      map[string]map[*Client]bool
	userClients map[string]*Client // key: scope:userID

	register   chan *Client
	unregister chan *Client
	broadcast  chan *scopedMessage

	mu          sync.RWMutex
	subscribers map[string]map[chan Event]bool

	done chan struct{}
}

// NewHub creates a hub. Call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		scopes:      make(map[string]map[*Client]bool),
		userClients: make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *scopedMessage, 256),
		subscribers: make(map[string]map[chan Event]bool),
		done:        make(chan struct{}),
	}
}

// Run drives the hub main loop until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToScope(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down and closes every client send channel.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userKey := h.userKey(client.Scope, client.UserID)

	// A user holds at most one connection per scope; a newer one
	// replaces the old.
	if oldClient, exists := h.userClients[userKey]; exists {
		h.removeClient(oldClient)
	}

	if h.scopes[client.Scope] == nil {
		h.scopes[client.Scope] = make(map[*Client]bool)
	}
	h.scopes[client.Scope][client] = true
	h.userClients[userKey] = client

	logger.Info("realtime client registered",
		logger.String("scope", client.Scope),
		logger.Int64("user", client.UserID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClient(client)
}

// removeClient needs h.mu held.
func (h *Hub) removeClient(client *Client) {
	userKey := h.userKey(client.Scope, client.UserID)

	if clients, ok := h.scopes[client.Scope]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(h.scopes, client.Scope)
			}
		}
	}
	delete(h.userClients, userKey)

	logger.Info("realtime client unregistered",
		logger.String("scope", client.Scope),
		logger.Int64("user", client.UserID))
}

func (h *Hub) broadcastToScope(msg *scopedMessage) {
	h.mu.RLock()
	clients, ok := h.scopes[msg.scope]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		if msg.excludeID > 0 && client.UserID == msg.excludeID {
			continue
		}

		select {
		case client.Send <- msg.message:
		default:
			// Send buffer full; drop the slow client.
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.scopes {
		for client := range clients {
			close(client.Send)
		}
	}
	h.scopes = make(map[string]map[*Client]bool)
	h.userClients = make(map[string]*Client)
}

func (h *Hub) userKey(scope string, userID int64) string {
	return fmt.Sprintf("%s:%d", scope, userID)
}

// Register attaches a websocket client to its scope.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister detaches a websocket client.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish broadcasts an event to a scope's websocket clients and
// in-process subscribers. The payload is marshaled once.
func (h *Hub) Publish(scope string, event *Event, excludeUserID int64) error {
	event.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	h.broadcast <- &scopedMessage{
		scope:     scope,
		message:   data,
		excludeID: excludeUserID,
	}

	h.mu.RLock()
	for ch := range h.subscribers[scope] {
		select {
		case ch <- *event:
		default:
			// Subscriber not keeping up; drop rather than block the
			// publisher. At-least-once, not exactly-once.
		}
	}
	h.mu.RUnlock()
	return nil
}

// Subscribe registers an in-process event channel for a scope. The
// returned cancel function must be called to release it.
func (h *Hub) Subscribe(scope string) (<-chan Event, func()) {
	ch := make(chan Event, 64)

	h.mu.Lock()
	if h.subscribers[scope] == nil {
		h.subscribers[scope] = make(map[chan Event]bool)
	}
	h.subscribers[scope][ch] = true
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[scope]; ok {
			if subs[ch] {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, scope)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// ScopeClientCount returns the number of websocket clients in a scope.
func (h *Hub) ScopeClientCount(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}

// ========== Client pumps ==========

// ReadPump consumes inbound frames until the connection drops,
// dispatching each to handler. It unregisters the client on exit.
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, data []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("scope", c.Scope),
						logger.Int64("user", c.UserID))
				}
				return
			}
			if handler != nil {
				handler(ctx, c, message)
			}
		}
	}
}

// WritePump drains the send channel to the connection and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce whatever is already queued.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
