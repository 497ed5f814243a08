package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Control events exchanged with clients
const (
	EventConnectionEstablished = "connection_established"
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
	EventSubscribed            = "subscription_succeeded"
	EventPing                  = "ping"
	EventPong                  = "pong"
	EventError                 = "error"
)

// SocketIDHeader is the request header a browser uses to name its own
// connection so events it causes are not echoed back to it.
const SocketIDHeader = "X-Socket-ID"

type control struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithAllowedChannels restricts subscriptions to the named channels
func WithAllowedChannels(channels ...string) HubOption {
	return func(h *Hub) {
		h.allowed = make(map[string]bool, len(channels))
		for _, c := range channels {
			h.allowed[c] = true
		}
	}
}

// WithConnectionGauge tracks open connections
func WithConnectionGauge(g prometheus.Gauge) HubOption {
	return func(h *Hub) { h.gauge = g }
}

// WithCheckOrigin overrides the websocket origin check
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = fn }
}

// Hub tracks the websocket clients of this instance and their channel
// subscriptions.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	allowed  map[string]bool
	upgrader websocket.Upgrader
	gauge    prometheus.Gauge
	logger   *zap.Logger
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool // guarded by hub.mu
}

// ServeHTTP upgrades the request and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]bool),
	}
	h.register(c)

	go c.writePump()
	c.sendControl(control{Event: EventConnectionEstablished, Data: map[string]string{"socket_id": c.id}})
	c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.Inc()
	}
	h.logger.Debug("Websocket connected", zap.String("socket_id", c.id))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.gauge != nil {
		h.gauge.Dec()
	}
	h.logger.Debug("Websocket disconnected", zap.String("socket_id", c.id))
}

func (h *Hub) subscribe(c *client, channel string) bool {
	if h.allowed != nil && !h.allowed[channel] {
		return false
	}
	h.mu.Lock()
	c.channels[channel] = true
	h.mu.Unlock()
	return true
}

func (h *Hub) unsubscribe(c *client, channel string) {
	h.mu.Lock()
	delete(c.channels, channel)
	h.mu.Unlock()
}

// Publish delivers msg to local subscribers. It lets a Hub stand in as the
// only Publisher of a single instance deployment.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	h.Broadcast(msg)
	return nil
}

// Broadcast delivers msg to every client subscribed to msg.Channel except
// msg.ExceptSocketID, and returns how many clients it was queued for.
// Clients whose send queue is full are disconnected.
func (h *Hub) Broadcast(msg Message) int {
	payload, err := msg.wire()
	if err != nil {
		h.logger.Error("Failed to encode broadcast message", zap.Error(err), zap.String("event", msg.Event))
		return 0
	}

	var slow []*client
	delivered := 0

	h.mu.RLock()
	for id, c := range h.clients {
		if id == msg.ExceptSocketID || !c.channels[msg.Channel] {
			continue
		}
		select {
		case c.send <- payload:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow websocket client", zap.String("socket_id", c.id))
		h.unregister(c)
	}
	return delivered
}

// Subscribers returns how many clients listen on channel
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.channels[channel] {
			n++
		}
	}
	return n
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (c *client) sendControl(msg control) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	// send is closed only under the write lock, after removal from clients
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket read failed", zap.Error(err), zap.String("socket_id", c.id))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var in control
		if err := json.Unmarshal(raw, &in); err != nil {
			c.sendControl(control{Event: EventError, Data: map[string]string{"message": "malformed message"}})
			continue
		}

		switch in.Event {
		case EventSubscribe:
			if !c.hub.subscribe(c, in.Channel) {
				c.sendControl(control{Event: EventError, Channel: in.Channel, Data: map[string]string{"message": "unknown channel"}})
				continue
			}
			c.sendControl(control{Event: EventSubscribed, Channel: in.Channel})
		case EventUnsubscribe:
			c.hub.unsubscribe(c, in.Channel)
		case EventPing:
			c.sendControl(control{Event: EventPong})
		default:
			c.sendControl(control{Event: EventError, Data: map[string]string{"message": "unknown event"}})
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
