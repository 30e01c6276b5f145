package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StatsMessage is one frame on the live stats stream.
type StatsMessage struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans a periodic metrics snapshot out to connected websocket
// clients. Slow clients are dropped rather than allowed to back up the
// broadcast.
type Hub struct {
	registry *Registry
	interval time.Duration
	log      *zap.Logger

	clients    map[*streamClient]bool
	broadcast  chan []byte
	register   chan *streamClient
	unregister chan *streamClient
	mu         sync.Mutex
	upgrader   websocket.Upgrader
}

func NewHub(registry *Registry, interval time.Duration, log *zap.Logger) *Hub {
	return &Hub{
		registry:   registry,
		interval:   interval,
		log:        log,
		clients:    make(map[*streamClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run drives registration and the snapshot ticker until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("stats client connected", zap.String("client", client.id), zap.Int("total", total))

		case client := <-h.unregister:
			h.dropClient(client)

		case <-ticker.C:
			frame, err := h.snapshotFrame()
			if err != nil {
				h.log.Warn("stats snapshot failed", zap.Error(err))
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) dropClient(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) snapshotFrame() ([]byte, error) {
	snap, err := h.registry.Snapshot()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return json.Marshal(StatsMessage{
		Type:      "stats",
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// ServeWS upgrades the connection and starts the read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan []byte, 64),
		id:   uuid.NewString(),
	}
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; it exists to notice disconnects.
func (c *streamClient) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
