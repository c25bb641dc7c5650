package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 1024                // Maximum message size allowed from peer.
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// identity is the fixed user attached to a connection once it authenticates.
type identity struct {
	userID int
	role   models.Role
}

// connection is a middleman between one websocket and the hub. The sock is
// exclusively owned by the two pumps; identity and subs are exclusively owned
// by the hub goroutine.
type connection struct {
	id   uuid.UUID
	hub  *Hub
	sock *websocket.Conn
	send chan []byte

	identity *identity
	subs     map[string]struct{}
}

func newConnection(h *Hub, sock *websocket.Conn) *connection {
	return &connection{
		id:   uuid.New(),
		hub:  h,
		sock: sock,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]struct{}),
	}
}

// readPump pumps frames from the websocket into the hub's serialized inbound
// channel. One per connection; exits on any read error.
func (c *connection) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.sock.Close()
	}()

	c.sock.SetReadLimit(maxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed",
					zap.String("connection_id", c.id.String()),
					zap.Error(err))
			}
			break
		}
		c.hub.inbound <- frame{conn: c, payload: message}
	}
}

// writePump pumps messages from the send channel to the websocket. Delivery
// order is the order the hub queued them.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub evicted us.
				c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades an HTTP request and registers the connection with the hub.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newConnection(h, sock)
	h.register <- c

	go c.writePump()
	go c.readPump()
}
