// Package websocket carries patch frames over gorilla/websocket, one text
// message per frame.
package websocket

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/doublezero/internal/core/protocol"
)

// Connection is one WebSocket patch stream.
type Connection struct {
	id           protocol.ConnectionID
	conn         *websocket.Conn
	config       protocol.Config
	lastActivity int64 // Unix timestamp
	connectedAt  time.Time
	closed       int32

	framesSent     uint64
	framesReceived uint64

	// Write mutex to ensure thread-safe writes
	writeMu sync.Mutex
}

// NewConnection wraps an established WebSocket.
func NewConnection(conn *websocket.Conn, config protocol.Config) *Connection {
	now := time.Now()
	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(config.MaxMessageSize))
	}
	return &Connection{
		id:           protocol.GenerateConnectionID(),
		conn:         conn,
		config:       config,
		lastActivity: now.Unix(),
		connectedAt:  now,
	}
}

// NewUpgrader returns an upgrader sized by config. checkOrigin may be nil
// to accept only same-origin requests.
func NewUpgrader(config protocol.Config, checkOrigin func(*http.Request) bool) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     checkOrigin,
	}
}

// Dial opens a WebSocket to url, sending header with the handshake.
func Dial(ctx context.Context, url string, header http.Header, tlsConfig *tls.Config, config protocol.Config) (*Connection, error) {
	dialer := &websocket.Dialer{
		ReadBufferSize:   config.ReadBufferSize,
		WriteBufferSize:  config.WriteBufferSize,
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsConfig,
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial websocket")
	}
	return NewConnection(conn, config), nil
}

func (c *Connection) ID() protocol.ConnectionID {
	return c.id
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes one frame as a text message.
func (c *Connection) Send(frame []byte) error {
	if c.IsClosed() {
		return protocol.ErrConnectionClosed
	}
	if c.config.MaxMessageSize > 0 && len(frame) > c.config.MaxMessageSize {
		return errors.Wrapf(protocol.ErrMessageTooLarge, "frame size %d exceeds limit %d", len(frame), c.config.MaxMessageSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}

	atomic.AddUint64(&c.framesSent, 1)
	atomic.StoreInt64(&c.lastActivity, time.Now().Unix())
	return nil
}

// Receive blocks for the next text or binary message.
func (c *Connection) Receive() ([]byte, error) {
	if c.IsClosed() {
		return nil, protocol.ErrConnectionClosed
	}

	if c.config.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read frame")
	}
	if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
		return nil, errors.New("unsupported message type")
	}

	atomic.AddUint64(&c.framesReceived, 1)
	atomic.StoreInt64(&c.lastActivity, time.Now().Unix())
	return data, nil
}

// Discard reads and drops incoming messages until the peer goes away.
// Control frames such as close are only processed while reading.
func (c *Connection) Discard() error {
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return err
		}
	}
}

func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Connection) LastActivity() time.Time {
	return time.Unix(atomic.LoadInt64(&c.lastActivity), 0)
}

func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// FramesSent returns how many frames Send delivered.
func (c *Connection) FramesSent() uint64 {
	return atomic.LoadUint64(&c.framesSent)
}

func (c *Connection) Close() error {
	return c.CloseWithReason("connection closed")
}

// CloseWithReason sends a close frame and closes the socket.
func (c *Connection) CloseWithReason(reason string) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}

	c.writeMu.Lock()
	closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}
