// Package client holds the caller-side state machines for the signaling
// endpoints: a websocket transport, a call client and a chat client.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event is a frame pushed by the server.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Transport sends one action to the server.
type Transport interface {
	Send(ctx context.Context, action string, data interface{}) error
}

// Handler consumes server events in arrival order.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event)
}

type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) { f(ctx, ev) }

var ErrNotConnected = errors.New("client: not connected")

// Conn is a JSON envelope connection to one signaling endpoint.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens endpoint (for example ws://host/signaling/chat) with token in
// the access_token query parameter.
func Dial(ctx context.Context, endpoint, token string) (*Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("access_token", token)
		u.RawQuery = q.Encode()
	}

	ws, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"User-Agent": {"okem-social-client/1.0"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u.Host, err)
	}
	return &Conn{ws: ws}, nil
}

// Send writes {"type": action, "data": data}. Safe for concurrent use.
func (c *Conn) Send(ctx context.Context, action string, data interface{}) error {
	if c == nil || c.ws == nil {
		return ErrNotConnected
	}
	if err := wsjson.Write(ctx, c.ws, outbound{Type: action, Data: data}); err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}
	return nil
}

// Listen reads until ctx ends or the connection closes, passing every event
// to h. A normal closure returns nil.
func (c *Conn) Listen(ctx context.Context, h Handler) error {
	if c == nil || c.ws == nil {
		return ErrNotConnected
	}
	for {
		var ev Event
		if err := wsjson.Read(ctx, c.ws, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
		h.HandleEvent(ctx, ev)
	}
}

func (c *Conn) Close() error {
	if c == nil || c.ws == nil {
		return nil
	}
	return c.ws.Close(websocket.StatusNormalClosure, "client disconnect")
}

func decode(ev Event, v interface{}) error {
	if len(ev.Data) == 0 {
		return fmt.Errorf("%s: empty payload", ev.Type)
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("%s: %w", ev.Type, err)
	}
	return nil
}
