package websocket

import (
	"context"
	"testing"
	"time"

	"safetrip/internal/domain/geo"
	"safetrip/internal/general/contracts"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestPingLoopExitsOnCancel(t *testing.T) {
	g, _, _ := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		g.pingLoop(ctx, &websocket.Conn{}, "u1")
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ping loop still running after its connection context was cancelled")
	}
}

func TestReleaseUserHonorsReconnectTakeover(t *testing.T) {
	g, rt, reg := newTestGateway(t)
	old, fresh := &websocket.Conn{}, &websocket.Conn{}

	// first socket registers and records presence
	g.active.Store("u1", old)
	rt.Register("u1", (&sink{}).send)
	rt.Join("u1", contracts.UserChannel("u1"))
	reg.Upsert("u1", geo.Point{Latitude: 6.5244, Longitude: 3.3792}, "lagos-island")

	// a reconnect takes over while the old socket is still draining
	g.active.Store("u1", fresh)
	live := &sink{}
	rt.Register("u1", live.send)

	// the old socket's teardown must leave the live registration intact
	g.releaseUser("u1", old)
	assert.Equal(t, 1, rt.Publish(contracts.UserChannel("u1"), map[string]string{"ok": "yes"}))
	_, present := reg.Get("u1")
	assert.True(t, present)

	// the live socket's own teardown still cleans up
	g.releaseUser("u1", fresh)
	assert.Equal(t, 0, rt.Publish(contracts.UserChannel("u1"), map[string]string{"ok": "yes"}))
	_, present = reg.Get("u1")
	assert.False(t, present)
}
