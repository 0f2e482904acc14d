package websocket

import (
	"sync"
	"time"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Conn is the part of a websocket connection the registry writes to.
// *github.com/gofiber/contrib/websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Client is one live connection owned by an authenticated user.
type Client struct {
	ID     uuid.UUID
	UserID uint

	conn      Conn
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	// loops counts the running write and ping goroutines.
	loops sync.WaitGroup

	// guarded by the owning Registry's mutex
	groups map[string]struct{}
}

func (c *Client) enqueue(ev Event) bool {
	if c.stopped() {
		return false
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) stop() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// wait blocks until the write and ping goroutines have returned. After it
// returns nothing touches conn again, so the socket may be released.
func (c *Client) wait() {
	c.loops.Wait()
}

func (c *Client) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) writeLoop(r *Registry) {
	defer c.loops.Done()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			if c.stopped() {
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Warnf("[%s] write to client %s (user %d) failed: %v", r.name, c.ID, c.UserID, err)
				r.remove(c)
				return
			}
		}
	}
}

func (c *Client) keepAliveLoop(r *Registry, interval time.Duration) {
	defer c.loops.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.stopped() {
				return
			}
			deadline := time.Now().Add(5 * time.Second)
			if err := c.conn.WriteControl(fiberws.PingMessage, nil, deadline); err != nil {
				log.Debugf("[%s] ping to client %s failed: %v", r.name, c.ID, err)
				r.remove(c)
				return
			}
		}
	}
}
