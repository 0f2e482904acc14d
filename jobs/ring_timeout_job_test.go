package jobs_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okemsocial/okem_social/jobs"
	"github.com/okemsocial/okem_social/signaling"
	"github.com/okemsocial/okem_social/websocket"
	"github.com/okemsocial/okem_social/websocket/websockettest"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpireRingingCallsEndsStaleCalls(t *testing.T) {
	r := websocket.NewRegistry("call", websocket.WithPingInterval(0))
	t.Cleanup(r.Close)
	m := signaling.NewCallManager(r,
		signaling.WithRingTimeout(30*time.Second),
		signaling.WithClock(func() time.Time { return time.Now().Add(-time.Minute) }),
	)
	callerConn := websockettest.NewConn()
	caller := r.Register(1, callerConn)
	r.Register(2, websockettest.NewConn())

	require.NoError(t, m.CallUser(1, caller.ID, 2, json.RawMessage(`{"sdp":"x"}`), false))

	jobs.ExpireRingingCalls(m)()

	callerConn.Expect(t, signaling.EventCallTimeout)
	assert.Equal(t, signaling.Idle, m.State(1))
	assert.Equal(t, signaling.Idle, m.State(2))
}

func TestScheduleRegistersSweeper(t *testing.T) {
	c := cron.New()
	m := signaling.NewCallManager(websocket.NewRegistry("call", websocket.WithPingInterval(0)))

	require.NoError(t, jobs.Schedule(c, m))
	assert.Len(t, c.Entries(), 1)
}
