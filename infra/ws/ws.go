// Package ws adapts a gorilla websocket connection to the session transport
// contract.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/domtech/lifeline/core/logger"
	"github.com/domtech/lifeline/core/session"
)

// Config tunes the websocket transport.
type Config struct {
	ReadBufferSize  int `json:"read_buffer_size"`
	WriteBufferSize int `json:"write_buffer_size"`
	// MaxMessageBytes bounds one inbound frame.
	MaxMessageBytes int64 `json:"max_message_bytes"`
	// IdleTimeoutSeconds closes connections without traffic or pongs.
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 1024
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 1024
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	if c.IdleTimeoutSeconds <= 0 {
		c.IdleTimeoutSeconds = 120
	}
}

const writeTimeout = 10 * time.Second

// Conn wraps a websocket connection. Writes are serialized; gorilla allows at
// most one concurrent writer.
type Conn struct {
	ws      *websocket.Conn
	idle    time.Duration
	writeMu sync.Mutex
}

// NewConn wraps an upgraded websocket connection and arms its read limits and
// pong handling.
func NewConn(c *websocket.Conn, cfg Config) *Conn {
	cfg.SetDefaults()
	idle := time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	c.SetReadLimit(cfg.MaxMessageBytes)
	c.SetReadDeadline(time.Now().Add(idle))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(idle))
	})
	return &Conn{ws: c, idle: idle}
}

// ReadMessage returns the next inbound frame. Every frame refreshes the idle
// deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.ws.SetReadDeadline(time.Now().Add(c.idle))
	return data, nil
}

func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Ping sends a control ping, keeping half-open connections detectable.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Endpoint returns an http.HandlerFunc upgrading requests and handing the
// connection to the session handler.
func Endpoint(handler *session.Handler, cfg Config, log logger.Logger) http.HandlerFunc {
	cfg.SetDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// Credentials travel in the first protocol message, not in the
			// handshake, so cross-origin upgrades are acceptable.
			return true
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("websocket upgrade failed: %v", err)
			return
		}
		conn := NewConn(wsConn, cfg)
		go keepAlive(r.Context(), conn)
		handler.Handle(r.Context(), conn)
	}
}

// keepAlive pings at a fraction of the idle timeout until the connection
// fails or the request context ends.
func keepAlive(ctx context.Context, conn *Conn) {
	interval := conn.idle * 9 / 10
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		}
	}
}

var _ session.Conn = (*Conn)(nil)
