package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// conn wraps a WebSocket connection with a buffered outbound queue drained by
// the write pump. Handlers never write to the socket directly.
type conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{
		ws:   ws,
		send: make(chan []byte, 256),
	}
}

// enqueue queues an outbound frame. It reports false when the connection is
// closed or the queue is full; a full queue means the client stopped reading.
func (c *conn) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the outbound queue and the underlying socket. Safe to call from
// both pumps.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.ws.Close()
}
