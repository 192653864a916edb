package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = PongWait * time.Second
	pingPeriod     = PingInterval * time.Second
	maxMessageSize = 1024
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is the envelope sent to clients.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is a single websocket connection.
type Client struct {
	ID     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

// TokenValidator checks the bearer token passed in the query string.
type TokenValidator interface {
	ValidateToken(token string) error
}

// ServeWs upgrades the request and attaches the client to the hub.
// The token is passed as ?token= since browsers cannot set websocket headers.
func ServeWs(hub *Hub, validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator != nil {
			token := c.Query("token")
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}
			if err := validator.ValidateToken(token); err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("ws upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			hub:    hub,
			conn:   conn,
			send:   make(chan WSMessage, sendBuffer),
			logger: hub.logger,
		}
		hub.register(client)

		go client.writePump()
		go client.readPump()
	}
}

// readPump drains inbound frames so pong handlers fire. The feed is
// one-way, inbound payloads are discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("ws read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
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
			if err := c.conn.WriteJSON(msg); err != nil {
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
