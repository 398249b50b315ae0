package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/careline/realtime/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Conn is the part of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

type ClientOptions struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Client is one live connection of an authenticated user.
type Client struct {
	hub    *Hub
	conn   Conn
	id     string
	userID string
	opts   ClientOptions
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	send   chan []byte
}

func NewClient(hub *Hub, conn Conn, userID string, opts ClientOptions) *Client {
	id := uuid.NewString()
	return &Client{
		hub:    hub,
		conn:   conn,
		id:     id,
		userID: userID,
		opts:   opts,
		log:    hub.log.With().Str("connection_id", id).Str("user_id", userID).Logger(),
		send:   make(chan []byte, opts.SendBuffer),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// enqueue hands a frame to the write pump without blocking. A client whose
// buffer is full is too slow to keep up and gets disconnected.
func (c *Client) enqueue(data []byte) bool {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return false
	}
	select {
	case c.send <- data:
		c.mu.RUnlock()
		return true
	default:
	}
	c.mu.RUnlock()

	c.log.Warn().Int("buffer", cap(c.send)).Msg("send buffer full, closing connection")
	c.Close()
	return false
}

// Close stops the write pump, which closes the socket; the read pump then
// unregisters the client. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump reads invocations until the connection fails. Invocations of one
// connection are dispatched in the order they arrive.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var inv models.Invocation
		if err := json.Unmarshal(data, &inv); err != nil || inv.Method == "" {
			c.log.Debug().Err(err).Int("bytes", len(data)).Msg("malformed frame dropped")
			continue
		}
		c.hub.Dispatch(ctx, c, inv)
	}
}

// WritePump drains the send buffer to the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
