package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fieldservice/backend/libs/logging"
	"fieldservice/backend/services/field-agent/internal/models"
	"fieldservice/backend/services/field-agent/internal/session"
)

// Event types pushed to the on-device UI.
const (
	EventSessionStart  = "session.start"
	EventStationLogged = "session.station_logged"
	EventSessionFinish = "session.finish"
	EventSessionCancel = "session.cancel"
	EventTick          = "session.tick"
)

const (
	sendBuffer   = 32
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// Event is one message on the feed.
type Event struct {
	Type    string      `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// TickPayload carries the elapsed time of the active session.
type TickPayload struct {
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	EntryCount     int     `json:"entryCount"`
}

// SnapshotSource is read by the display ticker.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// Hub fans session events out to every connected UI client. It implements
// session.Listener.
type Hub struct {
	mu           sync.RWMutex
	clients      map[*client]struct{}
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewHub builds an empty hub.
func NewHub(writeTimeout time.Duration, logger *zap.Logger) *Hub {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		clients:      make(map[*client]struct{}),
		writeTimeout: writeTimeout,
		now:          time.Now,
		logger:       logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS upgrades GET /events.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("event client connected", zap.String("remote", r.RemoteAddr))

	go h.writePump(c)
	go h.readPump(c)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues evt for every client. Slow clients drop messages.
func (h *Hub) Broadcast(evt Event) {
	if evt.At.IsZero() {
		evt.At = h.now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("encode event", zap.String("type", evt.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping event, client buffer full", zap.String("type", evt.Type))
		}
	}
}

// RunTicker broadcasts the elapsed time once per interval while a session is
// active. It only reads the session; it never changes it.
func (h *Hub) RunTicker(ctx context.Context, interval time.Duration, source SnapshotSource) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := source.Snapshot()
			if snap.State != session.StateActive.String() || h.Count() == 0 {
				continue
			}
			h.Broadcast(Event{Type: EventTick, Payload: TickPayload{
				ElapsedSeconds: snap.Elapsed.Seconds(),
				EntryCount:     snap.EntryCount,
			}})
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

func (h *Hub) OnSessionStart(s session.Snapshot) {
	h.Broadcast(Event{Type: EventSessionStart, Payload: s})
}

func (h *Hub) OnStationLogged(e models.StationLogEntry) {
	h.Broadcast(Event{Type: EventStationLogged, Payload: e})
}

func (h *Hub) OnSessionFinish(r session.Result) {
	h.Broadcast(Event{Type: EventSessionFinish, Payload: r.Summary})
}

func (h *Hub) OnSessionCancel() {
	h.Broadcast(Event{Type: EventSessionCancel})
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg, h.writeTimeout); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil, h.writeTimeout); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) write(messageType int, data []byte, timeout time.Duration) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteMessage(messageType, data)
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
