package hub

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// handshakeTimeout is the maximum time allowed for the websocket handshake.
	handshakeTimeout = time.Second * 10
)

// WSDialer dials hub connections over websockets.
type WSDialer struct{}

// Ensure the websocket dialer implements the Dialer interface.
var _ Dialer = (*WSDialer)(nil)

// NewWSDialer initializes a new websocket dialer.
func NewWSDialer() *WSDialer {
	return &WSDialer{}
}

// Dial connects to the hub at the provided url.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	return &wsConn{conn: conn}, nil
}

// wsConn adapts a websocket connection to the Conn interface. Writes are
// serialized since the websocket connection permits only one concurrent writer.
type wsConn struct {
	conn     *websocket.Conn
	writeMtx sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
