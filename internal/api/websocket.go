package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tapowatt/internal/infrastructure/config"
	"github.com/nerrad567/tapowatt/internal/infrastructure/logging"
)

// WSMessage is the envelope for all WebSocket traffic in both
// directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

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

// ChannelPowerUpdate carries the poller's aggregated readings.
const ChannelPowerUpdate = "power_update"

// wsSendBufferSize is the per-client outbound queue length. A client
// that falls this far behind gets its messages dropped.
const wsSendBufferSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin policy is enforced by the CORS middleware and auth.
		return true
	},
}

// Hub tracks connected WebSocket clients and fans events out to the
// ones subscribed to the event's channel.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates a WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", count)
}

// Unregister removes a client and closes its send queue exactly once.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", "clients", count)
}

// Broadcast sends an event to every client subscribed to the channel.
// Marshal failures drop the event; a slow client drops the message
// rather than blocking the broadcaster.
func (h *Hub) Broadcast(channel string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("failed to marshal broadcast payload", "channel", channel, "error", err)
		return
	}

	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.isSubscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(msg)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// WSClient is a single WebSocket connection with its subscriptions.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan WSMessage

	mu            sync.Mutex
	subscriptions map[string]struct{}
}

// handleWebSocket upgrades the connection and starts the client's
// read and write pumps. Authentication has already happened in the
// middleware chain.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "websocket hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan WSMessage, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}

	s.hub.Register(client)
	go client.writePump()
	go client.readPump()
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues a message without blocking. Sending on a closed
// channel is possible if the client unregisters concurrently, so the
// recover handles that race.
func (c *WSClient) trySend(msg WSMessage) {
	defer func() {
		recover()
	}()

	select {
	case c.send <- msg:
	default:
	}
}

// readPump reads messages from the client until the connection drops.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pongTimeout := time.Duration(c.hub.cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout * 2))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout * 2))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.handleMessage(msg)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings.
func (c *WSClient) writePump() {
	pingInterval := time.Duration(c.hub.cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeTimeout := time.Duration(c.hub.cfg.PongTimeout) * time.Second

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes a client request.
func (c *WSClient) handleMessage(msg WSMessage) {
	switch msg.Type {
	case WSTypeSubscribe:
		channel := c.channelFromPayload(msg)
		if channel == "" {
			c.sendError(msg.ID, "subscribe requires a channel")
			return
		}
		c.mu.Lock()
		c.subscriptions[channel] = struct{}{}
		c.mu.Unlock()
		c.sendResponse(msg.ID, map[string]string{"subscribed": channel})

	case WSTypeUnsubscribe:
		channel := c.channelFromPayload(msg)
		if channel == "" {
			c.sendError(msg.ID, "unsubscribe requires a channel")
			return
		}
		c.mu.Lock()
		delete(c.subscriptions, channel)
		c.mu.Unlock()
		c.sendResponse(msg.ID, map[string]string{"unsubscribed": channel})

	case WSTypePing:
		c.trySend(WSMessage{Type: WSTypePong, ID: msg.ID, Timestamp: time.Now().Unix()})

	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// channelFromPayload extracts the channel name from a subscribe or
// unsubscribe payload.
func (c *WSClient) channelFromPayload(msg WSMessage) string {
	var body struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		return ""
	}
	return body.Channel
}

func (c *WSClient) sendResponse(id string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	c.trySend(WSMessage{Type: WSTypeResponse, ID: id, Timestamp: time.Now().Unix(), Payload: payload})
}

func (c *WSClient) sendError(id, message string) {
	payload, _ := json.Marshal(map[string]string{"message": message})
	c.trySend(WSMessage{Type: WSTypeError, ID: id, Timestamp: time.Now().Unix(), Payload: payload})
}
