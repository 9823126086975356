package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/airmon/internal/models"
)

const (
	streamWriteWait = 10 * time.Second

	// Per-client backlog; a client further behind than this is dropped.
	streamSendBuffer = 16
)

// StreamHub pushes accepted readings to connected dashboard clients over
// WebSocket, so they don't have to poll for fresh data. Delivery is
// best-effort: a client that can't keep up is dropped and can resync from
// the query endpoints.
type StreamHub struct {
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
	allowedOrigins []string

	mutex   sync.RWMutex
	clients map[*streamClient]struct{}
}

// streamClient owns one connection. All frame writes happen on the client's
// writePump goroutine; the hub only feeds the send channel. A client's send
// channel is closed exactly once, by remove, while it is being taken out of
// the clients map.
type streamClient struct {
	conn *websocket.Conn
	send chan *models.StoredReading
}

// NewStreamHub creates a hub for live reading broadcast.
func NewStreamHub(logger zerolog.Logger, allowedOrigins ...string) *StreamHub {
	h := &StreamHub{
		logger:         logger,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*streamClient]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the request's Origin against the configured
// allowlist. Same-origin requests carry no Origin header and are accepted.
func (h *StreamHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	h.logger.Warn().Str("origin", origin).Msg("Rejected stream connection: origin not in allowlist")
	return false
}

// ServeHTTP upgrades the connection and registers the client.
func (h *StreamHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade stream connection")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan *models.StoredReading, streamSendBuffer),
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", count).Msg("Stream client connected")

	go h.writePump(client)
	go h.readPump(client)
}

// writePump is the sole writer for its connection; gorilla/websocket allows
// at most one concurrent frame writer.
func (h *StreamHub) writePump(c *streamClient) {
	defer c.conn.Close()

	for reading := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := c.conn.WriteJSON(reading); err != nil {
			h.logger.Warn().Err(err).Msg("Dropping stream client on write failure")
			h.remove(c)
			return
		}
	}

	// Send channel closed by the hub: say goodbye properly.
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}

// readPump drains (and discards) client frames so pings and close frames are
// processed; the stream is one-way.
func (h *StreamHub) readPump(c *streamClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// Broadcast queues a stored reading for every connected client. Clients whose
// backlog is full are dropped rather than blocking ingestion.
func (h *StreamHub) Broadcast(reading *models.StoredReading) {
	var slow []*streamClient

	h.mutex.RLock()
	for client := range h.clients {
		select {
		case client.send <- reading:
		default:
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range slow {
		h.logger.Warn().Msg("Dropping slow stream client")
		h.remove(client)
	}
}

// ClientCount returns the number of connected stream clients.
func (h *StreamHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *StreamHub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// remove unregisters the client and closes its send channel, ending the
// writePump. Safe to call more than once; the channel close is guarded by
// map membership.
func (h *StreamHub) remove(c *streamClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
