/*
Package notify broadcasts sale change events to websocket observers.

PURPOSE:
  Implements the sales.Notifier collaborator. The orchestrator invokes
  SaleChanged strictly after a transaction commits; the hub fans the event out
  to every connected client. Delivery is fire-and-forget: a slow or dead
  client gets dropped, and no failure here ever reaches the engine.

SEE ALSO:
  - sales/store.go: Notifier contract
  - api/server.go: Mounts the /ws endpoint
*/
package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/warp/sales-engine/sales"
)

// Event is the wire message observers receive.
type Event struct {
	SaleID    sales.SaleID     `json:"sale_id"`
	Kind      sales.ChangeKind `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
}

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	clientBacklog  = 16
	broadcastQueue = 256
)

// Hub tracks connected clients and fans out events.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan Event
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	done       chan struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, broadcastQueue),
		logger:     logger,
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set. Start it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
		case ev := <-h.broadcast:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// Slow client: drop it rather than block the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
		case <-h.done:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

// Stop shuts the hub down and disconnects every client.
func (h *Hub) Stop() {
	close(h.done)
}

// SaleChanged implements sales.Notifier. Never blocks: if the broadcast
// queue is full the event is dropped.
func (h *Hub) SaleChanged(saleID sales.SaleID, kind sales.ChangeKind) {
	ev := Event{SaleID: saleID, Kind: kind, Timestamp: time.Now().UTC()}
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("notification dropped, broadcast queue full",
			zap.String("sale_id", string(saleID)),
			zap.String("kind", string(kind)))
	}
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBacklog)}
	h.register <- c

	go c.writePump(h)
	go c.readPump(h)
}

// writePump pushes events and pings to the peer.
func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
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
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; observers are read-only. Exists to
// process control frames and detect disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
