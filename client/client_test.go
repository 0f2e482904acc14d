package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/okemsocial/okem_social/client"
	"github.com/stretchr/testify/require"
)

type sent struct {
	Action string
	Data   interface{}
}

// recorder is an in-memory Transport.
type recorder struct {
	mu    sync.Mutex
	sent  []sent
	fails error
}

func (r *recorder) Send(_ context.Context, action string, data interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails != nil {
		return r.fails
	}
	r.sent = append(r.sent, sent{Action: action, Data: data})
	return nil
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.Action)
	}
	return out
}

func (r *recorder) last(t *testing.T) sent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	return r.sent[len(r.sent)-1]
}

var errSend = errors.New("socket closed")

func event(t *testing.T, eventType string, payload interface{}) client.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return client.Event{Type: eventType, Data: raw}
}
