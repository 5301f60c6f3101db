package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	matterbridge "github.com/nerrad567/gray-logic-matter/internal/bridges/matter"
	"github.com/nerrad567/gray-logic-matter/internal/endpoint"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	// ChannelHealth carries bridge health messages.
	ChannelHealth = "bridge.health"

	// ChannelAllEndpoints subscribes to every endpoint.* channel at once.
	ChannelAllEndpoints = "endpoint.*"

	// wsSendBufferSize is the per-client outbound queue. A client whose
	// queue is full when an event arrives is disconnected.
	wsSendBufferSize = 256
)

// endpointChannels are the per-kind event channels, in subscription order.
var endpointChannels = []string{
	EventChannel(string(endpoint.EventAdded)),
	EventChannel(string(endpoint.EventRemoved)),
	EventChannel(string(endpoint.EventFailed)),
}

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// EventChannel maps a registry event kind to its WebSocket channel:
// endpoint_added becomes endpoint.added.
func EventChannel(kind string) string {
	return strings.Replace(kind, "_", ".", 1)
}

// expandChannels resolves ChannelAllEndpoints and reports names that are not
// channels. The result has no duplicates.
func expandChannels(requested []string) (resolved, unknown []string) {
	for _, ch := range requested {
		switch {
		case ch == ChannelAllEndpoints:
			for _, ec := range endpointChannels {
				if !slices.Contains(resolved, ec) {
					resolved = append(resolved, ec)
				}
			}
		case ch == ChannelHealth || slices.Contains(endpointChannels, ch):
			if !slices.Contains(resolved, ch) {
				resolved = append(resolved, ch)
			}
		default:
			unknown = append(unknown, ch)
		}
	}
	return resolved, unknown
}

// wsTimings are the keepalive durations derived from config.
type wsTimings struct {
	ping     time.Duration
	pongWait time.Duration
	maxSize  int64
}

// readDeadline is how long a connection may stay silent, pongs included.
func (t wsTimings) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pongWait)
}

// Hub tracks WebSocket clients and fans bridge events out to them.
//
// The last bridge.health message is kept and replayed to each client that
// subscribes to that channel, so dashboards need not wait for the next
// health interval.
type Hub struct {
	timing wsTimings
	logger *logging.Logger

	mu         sync.RWMutex
	clients    map[*WSClient]struct{}
	lastHealth []byte
}

// WSClient is one WebSocket connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string // token subject the ticket was issued to; empty without auth

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	subMu         sync.RWMutex
	subscriptions map[string]struct{}
}

// upgrader leaves origin checks to corsMiddleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates a hub using the keepalive and size limits in cfg.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		timing: wsTimings{
			ping:     time.Duration(cfg.PingInterval) * time.Second,
			pongWait: time.Duration(cfg.PongTimeout) * time.Second,
			maxSize:  int64(cfg.MaxMessageSize),
		},
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		subject:       subject,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// Unregister removes a client and closes its send queue, which ends its
// writePump. Calling it for a client already gone is a no-op.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.closeSend()
		h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
	}
}

// Broadcast sends an event to every client subscribed to channel. Clients
// that cannot keep up are disconnected.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.Lock()
	if channel == ChannelHealth {
		h.lastHealth = data
	}
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var sent int
	for _, c := range targets {
		if !c.isSubscribed(channel) {
			continue
		}
		if !c.enqueue(data) {
			h.logger.Warn("websocket client too slow, disconnecting", "subject", c.subject, "channel", channel)
			h.Unregister(c)
			c.shutdown()
			continue
		}
		sent++
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// healthSnapshot returns the last bridge.health event, or nil.
func (h *Hub) healthSnapshot() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastHealth
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribeBridgeEvents relays the bridge's MQTT events and health messages
// to WebSocket clients. Events arrive on EventChannel(kind); health on
// ChannelHealth.
func (s *Server) subscribeBridgeEvents() error {
	if s.mqtt == nil {
		return nil // MQTT not configured; WebSocket relay disabled
	}

	topic := matterbridge.EventSubscribeTopic()
	s.logger.Info("relaying endpoint events to websocket clients", "topic", topic)
	err := s.mqtt.Subscribe(topic, 1, func(t string, payload []byte) error {
		var ev matterbridge.EventMessage
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.logger.Warn("dropping unparseable endpoint event", "topic", t, "error", err)
			return nil
		}
		s.hub.Broadcast(EventChannel(string(ev.Kind)), ev)
		return nil
	})
	if err != nil {
		return err
	}

	return s.mqtt.Subscribe(matterbridge.HealthTopic(), 1, func(_ string, payload []byte) error {
		var health matterbridge.HealthMessage
		if err := json.Unmarshal(payload, &health); err != nil {
			s.logger.Warn("dropping unparseable health message", "error", err)
			return nil
		}
		s.hub.Broadcast(ChannelHealth, health)
		return nil
	})
}

// enqueue queues data without blocking. It reports false only when the
// queue is full; a closed client silently discards.
func (c *WSClient) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// shutdown ends both pumps: closing the queue stops writePump and closing
// the connection fails the pending read in readPump.
func (c *WSClient) shutdown() {
	c.closeSend()
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	t := c.hub.timing
	c.conn.SetReadLimit(t.maxSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(t.readDeadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(t.readDeadline())
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump() {
	t := c.hub.timing
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // Best-effort deadline; write error caught by caller
		c.conn.SetWriteDeadline(time.Now().Add(t.pongWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscription(msg, true)
	case WSTypeUnsubscribe:
		c.handleSubscription(msg, false)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscription applies a subscribe or unsubscribe request. One unknown
// channel rejects the whole request.
func (c *WSClient) handleSubscription(msg WSMessage, subscribe bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var req WSSubscribePayload
	if err := json.Unmarshal(raw, &req); err != nil || len(req.Channels) == 0 {
		c.sendError(msg.ID, "payload must list channels")
		return
	}

	resolved, unknown := expandChannels(req.Channels)
	if len(unknown) > 0 {
		c.sendError(msg.ID, "unknown channel: "+strings.Join(unknown, ", "))
		return
	}

	c.subMu.Lock()
	for _, ch := range resolved {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.subMu.Unlock()

	if !subscribe {
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": resolved})
		return
	}

	c.hub.logger.Debug("websocket client subscribed", "subject", c.subject, "channels", resolved)
	c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": resolved})
	if slices.Contains(resolved, ChannelHealth) {
		if snapshot := c.hub.healthSnapshot(); snapshot != nil {
			c.enqueue(snapshot)
		}
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// reply queues a direct response. It is dropped if the queue is full.
func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
