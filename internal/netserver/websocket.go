package netserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/opc"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		// Browser pages served from other hosts drive the server too.
		return true
	},
}

// Hub tracks WebSocket clients and fans out queued broadcasts.
type Hub struct {
	logger  Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex

	queueMu sync.Mutex
	queue   [][]byte
}

// wsClient is one upgraded connection.
type wsClient struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	handler Handler
}

// NewHub creates an empty hub.
func NewHub(logger Logger) *Hub {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run flushes the broadcast queue every interval until ctx is cancelled,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Flush()
		}
	}
}

// Broadcast queues msg for every connected client. It never blocks on a
// client and may be called from any goroutine.
func (h *Hub) Broadcast(msg []byte) {
	h.queueMu.Lock()
	h.queue = append(h.queue, msg)
	h.queueMu.Unlock()
}

// Flush sends every queued message to every client. A client whose
// buffer is full misses the message.
func (h *Hub) Flush() {
	h.queueMu.Lock()
	pending := h.queue
	h.queue = nil
	h.queueMu.Unlock()

	if len(pending) == 0 {
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, msg := range pending {
		for _, client := range clients {
			client.trySend(msg)
		}
	}
	if len(clients) > 0 {
		h.logger.Debug("broadcast flushed", "messages", len(pending), "recipients", len(clients))
	}
}

// Pending returns the number of queued broadcasts.
func (h *Hub) Pending() int {
	h.queueMu.Lock()
	defer h.queueMu.Unlock()
	return len(h.queue)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "conn", client.id, "clients", h.ClientCount())
}

// unregister removes a client from the hub.
// Only the goroutine that removes the client from the map closes the send
// channel, so shutdown and disconnect cannot double-close it.
func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "conn", client.id, "clients", h.ClientCount())
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the request and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.validator.Enabled() {
		if _, err := s.validator.Authenticate(r); err != nil {
			s.logger.Warn("websocket authentication failed", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &wsClient{
		id:      uuid.NewString(),
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
		handler: s.handler,
	}
	s.hub.register(client)

	// The request context ends when this handler returns.
	go client.writePump(s.cfg.WebSocket)
	go client.readPump(s.ctx, s.cfg.WebSocket)
}

// readLimit is the largest frame a client may send. Oversized binary
// frames up to the limit are truncated rather than refused.
func readLimit(cfg config.WebSocketConfig) int64 {
	return int64(max(cfg.MaxMessageSize, 2*opc.MaxMessageBytes))
}

// readPump reads frames until the connection fails or closes.
func (c *wsClient) readPump(ctx context.Context, cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit(cfg))
	pingInterval := cfg.GetPingInterval()
	pongWait := cfg.GetPongTimeout()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "conn", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "conn", c.id, "error", err)
			}
			return
		}
		// Any client frame keeps the connection alive, even without pongs.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		switch msgType {
		case websocket.BinaryMessage:
			if msg, ok := decodeBinaryFrame(data, c.hub.logger); ok {
				c.handler.HandlePixelMessage(msg)
			}
		case websocket.TextMessage:
			if reply, ok := c.handler.HandleControl(ctx, data); ok {
				c.trySend(reply)
			}
		}
	}
}

// writePump writes queued messages and keepalive pings.
func (c *wsClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(cfg.GetPingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := cfg.GetPongTimeout()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues data for the client without blocking.
// It absorbs the send on a channel closed by a concurrent disconnect and
// drops the message when the client's buffer is full.
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// decodeBinaryFrame turns one binary WebSocket frame into an OPC message.
// The frame length is authoritative: the header length field is ignored
// and the payload is truncated to the largest OPC message.
func decodeBinaryFrame(data []byte, logger Logger) (opc.Message, bool) {
	if len(data) < opc.HeaderBytes {
		logger.Debug("binary websocket frame too small for an OPC header", "bytes", len(data))
		return opc.Message{}, false
	}
	if data[2] != 0 || data[3] != 0 {
		logger.Debug("OPC message over websocket has non-zero length field")
	}
	if len(data) > opc.MaxMessageBytes {
		logger.Debug("oversized OPC message over websocket, truncating", "bytes", len(data))
		data = data[:opc.MaxMessageBytes]
	}
	return opc.Message{
		Channel: data[0],
		Command: opc.Command(data[1]),
		Data:    data[opc.HeaderBytes:],
	}, true
}
