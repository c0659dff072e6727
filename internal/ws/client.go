package ws

import (
	"sync"

	"github.com/google/uuid"
)

// Client is one registered connection's outbound queue.
type Client struct {
	ID uuid.UUID

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Send queues msg without blocking. It returns false if the queue is full or
// the client is closed.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Messages is closed when the client is unregistered.
func (c *Client) Messages() <-chan []byte { return c.send }

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
