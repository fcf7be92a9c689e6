package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin policy lives in the CORS layer
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans tick updates out to subscribed WebSocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	join  chan *Client
	leave chan *Client
	done  chan struct{}

	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		join:    make(chan *Client),
		leave:   make(chan *Client),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Run owns client membership until ctx ends, then drops every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.join:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Infow("ws_client_connected", "client", c.id, "total", n)

		case c := <-h.leave:
			h.drop(c)

		case <-ctx.Done():
			h.mu.RLock()
			all := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				all = append(all, c)
			}
			h.mu.RUnlock()
			for _, c := range all {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Infow("ws_client_disconnected", "client", c.id, "total", len(h.clients))
}

// BroadcastToChannel encodes data once and queues it for every subscriber of
// channel. Slow clients whose buffer is full miss the message.
func (h *Hub) BroadcastToChannel(channel string, data any) {
	msg, err := json.Marshal(data)
	if err != nil {
		h.logger.Warnw("ws_marshal_failed", "channel", channel, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Debugw("ws_message_dropped", "client", c.id, "channel", channel)
		}
	}
}

// Subscribers counts connected clients listening on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.subscribed(channel) {
			n++
		}
	}
	return n
}

// Client is one WebSocket connection and the channels it listens on.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	chMu     sync.RWMutex
	channels map[string]struct{}
}

func (c *Client) subscribed(channel string) bool {
	c.chMu.RLock()
	defer c.chMu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *Client) apply(req WSSubscribeRequest) {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	for _, ch := range req.Channels {
		switch req.Op {
		case "subscribe":
			c.channels[ch] = struct{}{}
		case "unsubscribe":
			delete(c.channels, ch)
		}
	}
}

// readLoop applies subscription requests until the connection fails.
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req WSSubscribeRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnw("ws_read_failed", "client", c.id, "err", err)
			}
			if badJSON(err) {
				c.hub.logger.Debugw("ws_invalid_message", "client", c.id, "err", err)
				continue
			}
			return
		}
		if req.Op != "subscribe" && req.Op != "unsubscribe" {
			c.hub.logger.Debugw("ws_unknown_op", "client", c.id, "op", req.Op)
			continue
		}
		c.apply(req)
		c.hub.logger.Debugw("ws_subscription", "client", c.id, "op", req.Op, "channels", req.Channels)
	}
}

func badJSON(err error) bool {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syn) || errors.As(err, &typ)
}

// writeLoop sends one frame per queued message and keeps the connection
// alive with pings.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	c := &Client{
		id:       conn.RemoteAddr().String(),
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]struct{}),
	}
	select {
	case s.hub.join <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}
