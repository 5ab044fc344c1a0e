package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// WSConn adapts a websocket connection to Conn. Writes are serialized; control frames are not.
type WSConn struct {
	id   string
	ws   *websocket.Conn
	mu   sync.Mutex
	once sync.Once
	done chan struct{}
}

func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{
		id:   uuid.NewString(),
		ws:   ws,
		done: make(chan struct{}),
	}
}

func (c *WSConn) ID() string { return c.id }

func (c *WSConn) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Close sends a normal close frame and releases the socket. Safe to call more than once.
func (c *WSConn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with an application close code.
func (c *WSConn) CloseWithCode(code int, text string) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the connection is closed.
func (c *WSConn) Done() <-chan struct{} {
	return c.done
}

// ReadLoop discards client messages and returns when the peer goes away. It keeps the
// connection alive with pings.
func (c *WSConn) ReadLoop() error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop()

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
