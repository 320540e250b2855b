package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/chepyr/task-store/internal/db"
	"github.com/chepyr/task-store/internal/models"
)

const defaultRequestTimeout = 5 * time.Second

type Handler struct {
	TaskRepo     db.TaskRepositoryInterface
	RateLimiter  *RateLimiter
	WSHub        *WSHub
	Logger       zerolog.Logger
	Timeout      time.Duration
	ClientOrigin string
}

// requestContext bounds a single store call by the handler timeout.
func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

const (
	EventTaskCreated = "task_created"
	EventTaskUpdated = "task_updated"
	EventTaskDeleted = "task_deleted"
)

// TaskEvent is pushed to every WebSocket client after a successful write.
// Task is nil for deletions.
type TaskEvent struct {
	Event  string       `json:"event"`
	TaskID int64        `json:"task_id"`
	Task   *models.Task `json:"task,omitempty"`
}

const wsWriteTimeout = 5 * time.Second

type WSHub struct {
	connections map[*websocket.Conn]*wsClient
	mutex       sync.Mutex
	logger      zerolog.Logger
}

// wsClient serializes writes to one connection; gorilla allows a single
// concurrent writer.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) send(event TaskEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(event)
}

func NewWSHub(logger zerolog.Logger) *WSHub {
	return &WSHub{
		connections: make(map[*websocket.Conn]*wsClient),
		logger:      logger,
	}
}

func (h *WSHub) register(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.connections[conn] = &wsClient{conn: conn}
}

func (h *WSHub) unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		conn.Close()
	}
}

// Count returns the number of connected clients.
func (h *WSHub) Count() int {
	if h == nil {
		return 0
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

func (h *WSHub) clients() []*wsClient {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	clients := make([]*wsClient, 0, len(h.connections))
	for _, client := range h.connections {
		clients = append(clients, client)
	}
	return clients
}

// Broadcast sends event to all connected clients. Clients that fail the
// write are dropped. The hub lock is not held while writing, so a slow
// client does not block registration or other hub calls.
func (h *WSHub) Broadcast(event TaskEvent) {
	if h == nil {
		return
	}
	for _, client := range h.clients() {
		if err := client.send(event); err != nil {
			h.logger.Warn().
				Err(err).
				Str("event", event.Event).
				Msg("failed to send websocket message")
			h.unregister(client.conn)
		}
	}
}

// Close disconnects every client. Hijacked connections are not closed by
// http.Server.Shutdown, so this runs on shutdown.
func (h *WSHub) Close() {
	if h == nil {
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.connections {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.connections, conn)
	}
}

// fixed-window limiter keyed by client IP
type RateLimiter struct {
	attempts map[string]int
	limit    int
	mutex    sync.Mutex
	window   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	rl := &RateLimiter{
		attempts: make(map[string]int),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	count, exists := rl.attempts[ip]
	if !exists {
		rl.attempts[ip] = 1
		return true
	}
	if count >= rl.limit {
		return false
	}
	rl.attempts[ip]++
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mutex.Lock()
			rl.attempts = make(map[string]int)
			rl.mutex.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func originChecker(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.RateLimiter != nil && !h.RateLimiter.Allow(c.ClientIP()) {
		abort(c, newAPIError(http.StatusTooManyRequests, "Too many WebSocket connection attempts"))
		return
	}

	if h.WSHub == nil {
		abort(c, newStatusTextError(http.StatusServiceUnavailable))
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: originChecker(h.ClientOrigin)}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.Logger.Warn().
			Err(err).
			Msg("websocket upgrade failed")
		return
	}

	h.WSHub.register(conn)
	defer h.WSHub.unregister(conn)
	h.Logger.Debug().
		Str("client_ip", c.ClientIP()).
		Msg("websocket client connected")

	// The feed is server-to-client only; reads just detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.Logger.Debug().
					Err(err).
					Msg("websocket read failed")
			}
			return
		}
	}
}
