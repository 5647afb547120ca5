package websocket

import (
	"encoding/json"
	"time"

	"github.com/fairguard/backend/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Consoles only send keepalives
	maxMessageSize = 512
)

// Client is one connected operator console
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	replies     chan []byte
	userID      string
	connectedAt time.Time

	// simple token-bucket rate limiter for inbound frames
	tokens       int
	maxTokens    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	now := time.Now()
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		replies:      make(chan []byte, 8),
		userID:       userID,
		connectedAt:  now,
		tokens:       10,
		maxTokens:    10,
		refillPeriod: time.Second,
		lastRefill:   now,
	}
}

// ReadPump reads keepalives until the connection drops
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("user_id", c.userID).Msg("websocket read failed")
			}
			return
		}

		if !c.take(time.Now()) {
			c.sendError("rate_limited", "too many messages")
			continue
		}
		c.handleMessage(message)
	}
}

func (c *Client) take(now time.Time) bool {
	if elapsed := now.Sub(c.lastRefill); elapsed >= c.refillPeriod {
		c.tokens += int(elapsed / c.refillPeriod)
		if c.tokens > c.maxTokens {
			c.tokens = c.maxTokens
		}
		c.lastRefill = now
	}
	if c.tokens <= 0 {
		return false
	}
	c.tokens--
	return true
}

// WritePump pumps alerts from the hub and replies to keepalives to the
// WebSocket connection. The hub owns send; the client owns replies.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one alert per frame so consoles can decode each frame as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case reply := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, reply); err != nil {
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

func (c *Client) handleMessage(data []byte) {
	var wsMsg models.WSMessage
	if err := json.Unmarshal(data, &wsMsg); err != nil {
		c.sendError("bad_request", "invalid message format")
		return
	}

	switch wsMsg.Event {
	case models.EventPing:
		c.push(models.WSMessage{Event: models.EventPong, SentAt: c.hub.now()})
	default:
		c.sendError("bad_request", "unknown event type")
	}
}

func (c *Client) sendError(code, message string) {
	c.push(models.WSMessage{
		Event:   models.EventError,
		Payload: models.WSErrorPayload{Message: message, Code: code},
		SentAt:  c.hub.now(),
	})
}

func (c *Client) push(msg models.WSMessage) {
	data, _ := json.Marshal(msg)
	select {
	case c.replies <- data:
	default:
	}
}
