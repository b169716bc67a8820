package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
)

// Client is one connected WebSocket session.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: server,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// ID returns the connection's identifier.
func (c *Client) ID() string { return c.id }

// Run pumps messages until the connection drops or ctx is done.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "client", c.id, "error", err)
			}
			return
		}

		var req protocol.RequestFrame
		if err := json.Unmarshal(data, &req); err != nil || req.Method == "" {
			c.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "malformed request frame"))
			continue
		}

		if c.server.rateLimiter.Enabled() && !c.server.rateLimiter.Allow(c.id) {
			c.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrRateLimited, "too many requests"))
			continue
		}

		c.server.router.Dispatch(ctx, c, &req)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Client) enqueue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("frame marshal failed", "client", c.id, "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.closed:
	default:
		slog.Warn("client send buffer full, dropping frame", "client", c.id)
	}
}

// SendResponse queues a response frame.
func (c *Client) SendResponse(res protocol.ResponseFrame) { c.enqueue(res) }

// SendEvent queues an event frame.
func (c *Client) SendEvent(ev protocol.EventFrame) { c.enqueue(ev) }

// Close tears the connection down.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}
