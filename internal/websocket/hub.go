// Package websocket streams pipeline step events to connected observers.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/internal/pipeline"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Observers only send small control messages
	maxMessageSize = 4 * 1024

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active observers and broadcasts events to them.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run forwards events to every subscribed client until ctx is done, then
// disconnects all clients. A closed events channel keeps the hub serving
// registrations.
func (h *Hub) Run(ctx context.Context, events <-chan pipeline.Event) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Observer registered", zap.String("clientID", client.id))

		case client := <-h.unregister:
			h.remove(client)
			h.logger.Info("Observer unregistered", zap.String("clientID", client.id))

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			h.dispatch(NewEventMessage(event))
		}
	}
}

// ClientCount returns the number of registered observers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dispatch(msg *EventMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode event", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Client
	for _, client := range h.clients {
		if !client.wants(msg.Definition) {
			continue
		}
		select {
		case client.send <- WriteData{Type: websocket.TextMessage, Payload: payload}:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Dropping slow observer", zap.String("clientID", client.id))
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound events. Only the hub closes it.
	send chan WriteData

	// Replies to the client's own messages, written by readPump only
	replies chan WriteData

	id     string
	logger *zap.Logger

	// nil means every definition
	definitions map[string]bool
	mutex       sync.Mutex
}

func (c *Client) wants(definition string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.definitions == nil || c.definitions[definition]
}

func (c *Client) subscribe(definitions []string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(definitions) == 0 {
		c.definitions = nil
		return
	}
	c.definitions = make(map[string]bool, len(definitions))
	for _, d := range definitions {
		c.definitions[d] = true
	}
}

// HandleWebSocket upgrades the request and registers the peer as an observer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan WriteData, sendBuffer),
		replies: make(chan WriteData, 16),
		id:      uuid.NewString(),
		logger:  logger,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump handles control messages until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			continue
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
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
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case message := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
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

// processMessage applies a subscription or answers a ping
func (c *Client) processMessage(message []byte) {
	parsed, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected observer message", zap.String("clientID", c.id), zap.Error(err))
		c.reply(&ErrorMessage{BaseMessage: newBase(MessageTypeError), Message: err.Error()})
		return
	}

	switch msg := parsed.(type) {
	case *SubscribeMessage:
		c.subscribe(msg.Definitions)
		c.logger.Info("Observer subscribed",
			zap.String("clientID", c.id),
			zap.Strings("definitions", msg.Definitions))
	case *PingMessage:
		c.reply(&PongMessage{BaseMessage: newBase(MessageTypePong), Data: msg.Data})
	}
}

func (c *Client) reply(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode reply", zap.Error(err))
		return
	}
	select {
	case c.replies <- WriteData{Type: websocket.TextMessage, Payload: payload}:
	default:
		c.logger.Warn("Reply buffer full, dropping reply", zap.String("clientID", c.id))
	}
}
