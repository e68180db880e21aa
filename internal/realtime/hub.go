// Package realtime serves WebSocket clients: it upgrades connections,
// decodes client commands and delivers events through per-connection
// buffered writers.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/observability"
)

// Default connection settings.
const (
	DefaultSendBuffer   = 64
	DefaultWriteWait    = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultPingInterval = 50 * time.Second
	DefaultReadLimit    = 4096
)

var (
	// ErrUnknownConnection is returned by Send for ids that are not connected.
	ErrUnknownConnection = errors.New("realtime: unknown connection")
	// ErrBufferFull is returned by Send when the client is too slow; the event is dropped.
	ErrBufferFull = errors.New("realtime: send buffer full")
)

// CommandHandler reacts to connection lifecycle and client commands.
type CommandHandler interface {
	ClientConnected(id string)
	ClientDisconnected(id string)
	JoinToken(id, address, ackID string)
	LeaveToken(id, address, ackID string)
	JoinFilterGroup(ctx context.Context, id string, req domain.FilterRequest, ackID string)
	LeaveAllFilterGroups(id, ackID string)
}

// Options configures a Hub.
type Options struct {
	SendBuffer   int
	WriteWait    time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
	Logger      logrus.FieldLogger
}

// Hub owns every live WebSocket connection.
type Hub struct {
	upgrader websocket.Upgrader
	handler  CommandHandler
	opts     Options
	log      logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub creates a hub. SetCommandHandler must be called before serving.
func NewHub(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = DefaultWriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = DefaultPongWait
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongWait {
		opts.PingInterval = opts.PongWait * 9 / 10
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		opts:     opts,
		log:      logger.Component(opts.Logger, "realtime"),
		clients:  make(map[string]*client),
	}
}

// SetCommandHandler attaches the handler for client commands.
func (h *Hub) SetCommandHandler(handler CommandHandler) {
	h.handler = handler
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues ev for the connection without blocking.
func (h *Hub) Send(id string, ev domain.Event) error {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if !c.enqueue(msg) {
		observability.RecordEventDropped()
		return ErrBufferFull
	}
	observability.RecordEventSent(ev.Name)
	return nil
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade")
		return
	}

	c := newClient(uuid.NewString(), conn, h.opts.SendBuffer)
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.log.WithField("conn", c.id).Debug("client connected")
	if h.handler != nil {
		h.handler.ClientConnected(c.id)
	}

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

// unregister runs once per connection regardless of which side closed it.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close()
	if ok && h.handler != nil {
		h.handler.ClientDisconnected(c.id)
	}
	if ok {
		h.log.WithField("conn", c.id).Debug("client disconnected")
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(DefaultReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).WithField("conn", c.id).Debug("read")
			}
			return
		}
		h.dispatch(ctx, c.id, data)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.opts.WriteWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.WithError(err).WithField("conn", c.id).Debug("write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, buffer int) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
