package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
)

// feedBufferSize is the per-client outbound event buffer size. Events for a
// client whose buffer is full are dropped.
const feedBufferSize = 256

// Event is one message pushed to feed clients.
type Event struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// Feed pushes value events to connected WebSocket clients. The feed is one
// way: clients choose what they receive when connecting, with repeated
// ?entity=<id> query values, and anything they send is discarded.
type Feed struct {
	cfg    config.WebSocketConfig
	logger warehouse.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn     *websocket.Conn
	send     chan []byte
	entities []string
}

// wants reports whether the client asked for events of entityID.
func (c *feedClient) wants(entityID string) bool {
	return len(c.entities) == 0 || slices.Contains(c.entities, entityID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewFeed creates a feed with no clients.
func NewFeed(cfg config.WebSocketConfig, logger warehouse.Logger) *Feed {
	return &Feed{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (f *Feed) Run(ctx context.Context) {
	<-ctx.Done()

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		f.dropLocked(c)
	}
}

// Publish sends an event about entityID to every client that wants it.
func (f *Feed) Publish(eventType, entityID string, payload any) {
	data, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		f.logger.Error("failed to marshal feed event", "type", eventType, "error", err)
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for c := range f.clients {
		if !c.wants(entityID) {
			continue
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// remove drops c unless Run already did. Only the remover closes c.send,
// and Publish never sends without holding the read lock.
func (f *Feed) remove(c *feedClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[c]; ok {
		f.dropLocked(c)
	}
	f.logger.Debug("feed client disconnected", "clients", len(f.clients))
}

func (f *Feed) dropLocked(c *feedClient) {
	delete(f.clients, c)
	close(c.send)
}

// handleWebSocket upgrades the connection and attaches it to the feed.
// Authentication, when configured, already happened in authMiddleware.
func (r *REST) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		conn:     conn,
		send:     make(chan []byte, feedBufferSize),
		entities: req.URL.Query()["entity"],
	}
	r.feed.mu.Lock()
	r.feed.clients[c] = struct{}{}
	r.feed.mu.Unlock()
	r.logger.Debug("feed client connected", "entities", c.entities)

	go r.feed.writePump(c)
	go r.feed.readPump(c)
}

// readPump discards client messages and keeps the read deadline moving on
// pongs. It ends the client on any read error.
func (f *Feed) readPump(c *feedClient) {
	defer func() {
		f.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(f.cfg.MaxMessageSize))
	deadline := time.Duration(f.cfg.PingInterval+f.cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

func (f *Feed) writePump(c *feedClient) {
	ticker := time.NewTicker(time.Duration(f.cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(f.cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
