package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/vigilant-core/internal/infrastructure/config"
)

// Message types.
const (
	TypePing     = "ping"
	TypePong     = "pong"
	TypeEvent    = "event"
	TypeError    = "error"

	// GroupGlobal is the only group. Every session joins it on connect.
	GroupGlobal = "global"

	defaultSendBuffer     = 64
	defaultMaxMessageSize = 4096
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigilant",
		Subsystem: "realtime",
		Name:      "sessions",
		Help:      "Connected realtime sessions.",
	})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigilant",
		Subsystem: "realtime",
		Name:      "dropped_messages_total",
		Help:      "Messages skipped because a session buffer was full.",
	})
)

// Message is a frame sent to or received from a session.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Event     string `json:"event,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Logger is the logging surface the hub needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Hub fans events out to every connected session.
//
// Delivery is best-effort: a session whose buffer is full misses the event,
// and a session that connects later never sees it.
type Hub struct {
	logger     Logger
	sendBuffer int
	maxMsgSize int64
	pingEvery  time.Duration
	pongWait   time.Duration
	upgrader   websocket.Upgrader

	clients map[*session]struct{}
	mu      sync.RWMutex
	closed  bool
}

// session is one connected WebSocket.
type session struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	subject string
}

// NewHub creates a hub from the websocket config section.
func NewHub(cfg config.WebSocketConfig, logger Logger) *Hub {
	h := &Hub{
		logger:     logger,
		sendBuffer: cfg.SendBuffer,
		maxMsgSize: int64(cfg.MaxMessageSize),
		pingEvery:  time.Duration(cfg.PingInterval) * time.Second,
		pongWait:   time.Duration(cfg.PongTimeout) * time.Second,
		clients:    make(map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API rejects disallowed origins before calling ServeWS.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	if h.maxMsgSize <= 0 {
		h.maxMsgSize = defaultMaxMessageSize
	}
	if h.pingEvery <= 0 {
		h.pingEvery = defaultPingInterval
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongTimeout
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Broadcast sends event to every session in the global group.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(Message{
		Type:      TypeEvent,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "event", event, "error", err)
		return
	}

	// Snapshot under the hub lock, send without it.
	h.mu.RLock()
	clients := make([]*session, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.trySend(data)
	}
	if len(clients) > 0 {
		h.logger.Debug("broadcast sent", "event", event, "group", GroupGlobal, "recipients", len(clients))
	}
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and joins the session to the global group.
// subject identifies the authenticated caller in logs.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, subject string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &session{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		subject: subject,
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *session) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	sessionsGauge.Inc()
	h.logger.Debug("realtime session joined", "subject", c.subject, "group", GroupGlobal, "clients", n)
	return true
}

// unregister removes a session. Only the caller that removes it closes the
// send channel.
func (h *Hub) unregister(c *session) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
		sessionsGauge.Dec()
	}
	h.logger.Debug("realtime session left", "subject", c.subject, "clients", n)
}

// closeAll disconnects every session and refuses new ones.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, c)
		sessionsGauge.Dec()
	}
}

func (c *session) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.maxMsgSize)
	deadline := c.hub.pingEvery + c.hub.pongWait
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(data)
	}
}

func (c *session) writePump() {
	ticker := time.NewTicker(c.hub.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers client frames. Sessions cannot leave the global
// group, so ping is the only request understood.
func (c *session) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendReply("", TypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch msg.Type {
	case TypePing:
		c.sendReply(msg.ID, TypePong, nil)
	default:
		c.sendReply(msg.ID, TypeError, map[string]string{"message": "unknown message type: " + msg.Type})
	}
}

func (c *session) sendReply(id, msgType string, payload any) {
	data, err := json.Marshal(Message{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. A full buffer drops the message and
// a closed channel (session leaving mid-broadcast) is ignored.
func (c *session) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		droppedTotal.Inc()
	}
}
