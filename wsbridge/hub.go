// Package wsbridge forwards session events to WebSocket clients and lets clients send
// commands to devices.
package wsbridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/arloliu/go-tether/logger"
	"github.com/arloliu/go-tether/tether"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	sendQueueSize = 64
	writeTimeout  = 10 * time.Second
	pongTimeout   = 60 * time.Second
	pingInterval  = 30 * time.Second
	maxReadSize   = 4096
)

// CommandSender sends a command to the device of a session; *tether.Manager implements it.
type CommandSender interface {
	SendCommand(address string, cmd string) bool
}

type client struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex // protects send and closed
	send   chan []byte
	closed bool
}

// offer queues data for the write pump. It returns false when the queue is full.
func (c *client) offer(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

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

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub is an http.Handler upgrading requests to WebSocket connections. Its Handle method is a
// tether.EventHandler broadcasting events to every connected client.
type Hub struct {
	sender   CommandSender
	upgrader websocket.Upgrader
	clients  *xsync.MapOf[string, *client]
	logger   logger.Logger
}

var _ http.Handler = (*Hub)(nil)

// NewHub creates a hub. sender may be nil, in which case send requests are rejected.
func NewHub(sender CommandSender, l logger.Logger) *Hub {
	if l == nil {
		l = logger.GetLogger()
	}

	return &Hub{
		sender: sender,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: xsync.NewMapOf[string, *client](),
		logger:  l,
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.clients.Size()
}

// Handle broadcasts a session event; it is meant to be registered as a tether.EventHandler.
func (h *Hub) Handle(address string, ev tether.Event) {
	msg, err := EventMessage(address, ev)
	if err != nil {
		h.logger.Error("wsbridge: failed to encode event", "address", address, "error", err)
		return
	}

	h.broadcast(msg)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clients.Range(func(id string, c *client) bool {
		h.removeClient(c)
		return true
	})
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("wsbridge: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendQueueSize)}
	h.clients.Store(c.id, c)
	h.logger.Info("wsbridge: client connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writePump(c)

	hello, _ := json.Marshal(HelloPayload{ClientID: c.id})
	h.sendTo(c, Message{Type: MsgHello, Payload: hello})

	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.removeClient(c)
		h.logger.Info("wsbridge: client disconnected", "client", c.id)
	}()

	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var req Message
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("wsbridge: read failed", "client", c.id, "error", err)
			}

			return
		}

		h.handleRequest(c, req)
	}
}

func (h *Hub) handleRequest(c *client, req Message) {
	if req.Type != MsgSend {
		h.sendTo(c, Message{Type: MsgError, ID: req.ID, Error: "unsupported message type: " + req.Type})
		return
	}

	accepted := h.sender != nil && req.Address != "" && h.sender.SendCommand(req.Address, req.Command)
	h.logger.Debug("wsbridge: send request", "client", c.id, "address", req.Address,
		"command", req.Command, "accepted", accepted)

	h.sendTo(c, Message{Type: MsgSendResult, ID: req.ID, Address: req.Address, Command: req.Command, Accepted: &accepted})
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendTo(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("wsbridge: failed to encode message", "error", err)
		return
	}

	h.enqueue(c, data)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("wsbridge: failed to encode message", "error", err)
		return
	}

	h.clients.Range(func(_ string, c *client) bool {
		h.enqueue(c, data)
		return true
	})
}

func (h *Hub) enqueue(c *client, data []byte) {
	if !c.offer(data) {
		h.logger.Warn("wsbridge: client too slow, disconnecting", "client", c.id)
		h.removeClient(c)
	}
}

func (h *Hub) removeClient(c *client) {
	if _, ok := h.clients.LoadAndDelete(c.id); ok {
		c.close()
	}
}
