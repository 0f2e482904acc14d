// Package websockettest provides an in-memory websocket.Conn for tests.
package websockettest

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okemsocial/okem_social/websocket"
)

var ErrClosed = errors.New("websockettest: connection closed")

// Conn records every event written to it.
type Conn struct {
	events chan websocket.Event

	mu      sync.Mutex
	closed  bool
	retired bool
	misuse  int
	gate    chan struct{}
}

func NewConn() *Conn {
	return &Conn{events: make(chan websocket.Event, 256)}
}

// NewBlockedConn returns a Conn whose writes hang until Release is called.
func NewBlockedConn() *Conn {
	c := NewConn()
	c.gate = make(chan struct{})
	return c
}

func (c *Conn) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

func (c *Conn) releaseLocked() {
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
}

// Retire marks the socket as handed back to the server. Any write that
// starts or finishes afterwards is counted by Misuse.
func (c *Conn) Retire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retired = true
}

// Misuse reports how many writes touched the socket after Retire.
func (c *Conn) Misuse() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misuse
}

func (c *Conn) enter() (gate chan struct{}, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		c.misuse++
	}
	return c.gate, c.closed
}

func (c *Conn) leave() (closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		c.misuse++
	}
	return c.closed
}

func (c *Conn) WriteJSON(v interface{}) error {
	gate, closed := c.enter()
	if closed {
		return ErrClosed
	}
	if gate != nil {
		<-gate
	}
	if c.leave() {
		return ErrClosed
	}

	ev, ok := v.(websocket.Event)
	if !ok {
		return errors.New("websockettest: unexpected frame type")
	}
	c.events <- ev
	return nil
}

func (c *Conn) WriteControl(int, []byte, time.Time) error {
	if _, closed := c.enter(); closed {
		return ErrClosed
	}
	return nil
}

// Close fails any write blocked on the gate, like closing a real socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.releaseLocked()
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Next waits for the next written event.
func (c *Conn) Next(t testing.TB) websocket.Event {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for an event")
		return websocket.Event{}
	}
}

// Expect waits for the next event and fails unless it has the given type.
func (c *Conn) Expect(t testing.TB, eventType string) websocket.Event {
	t.Helper()
	ev := c.Next(t)
	if ev.Type != eventType {
		t.Fatalf("expected %s event, got %s (%+v)", eventType, ev.Type, ev.Data)
	}
	return ev
}

// Quiet fails if an event arrives within d.
func (c *Conn) Quiet(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case ev := <-c.events:
		t.Fatalf("unexpected %s event: %+v", ev.Type, ev.Data)
	case <-time.After(d):
	}
}

// Decode round-trips ev.Data through JSON into v, the way a browser sees it.
func Decode(t testing.TB, ev websocket.Event, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		t.Fatalf("marshal %s: %v", ev.Type, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal %s: %v", ev.Type, err)
	}
}
