package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(userID, threadID string, buffer int) *Client {
	return NewClient(userID, threadID, nil, buffer, time.Minute)
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.send:
		return frame
	default:
		t.Fatalf("expected a frame queued for user %s", c.UserID)
		return nil
	}
}

func TestHubBroadcastFanout(t *testing.T) {
	hub := NewHub()
	alice := newTestClient("alice", "t1", 8)
	bob := newTestClient("bob", "t1", 8)
	carol := newTestClient("carol", "t2", 8)
	hub.Register(alice)
	hub.Register(bob)
	hub.Register(carol)

	hub.Broadcast("t1", []byte("hello"))

	assert.Equal(t, []byte("hello"), recv(t, alice))
	assert.Equal(t, []byte("hello"), recv(t, bob))
	assert.Empty(t, carol.send, "other threads stay quiet")
}

func TestHubBroadcastExcept(t *testing.T) {
	hub := NewHub()
	alice := newTestClient("alice", "t1", 8)
	bob := newTestClient("bob", "t1", 8)
	hub.Register(alice)
	hub.Register(bob)

	hub.BroadcastExcept("t1", "alice", []byte("typing"))

	assert.Empty(t, alice.send)
	assert.Equal(t, []byte("typing"), recv(t, bob))
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	alice := newTestClient("alice", "t1", 8)
	hub.Register(alice)
	hub.Unregister(alice)

	hub.Broadcast("t1", []byte("gone"))
	assert.Empty(t, alice.send)
}

func TestClientStates(t *testing.T) {
	c := newTestClient("alice", "t1", 8)
	assert.Equal(t, StateConnecting, c.State())

	// A connection that never passed authorization cannot receive frames.
	assert.False(t, c.enqueue([]byte("early")))

	c.open()
	assert.Equal(t, StateOpen, c.State())
	assert.True(t, c.enqueue([]byte("now")))

	c.Close()
	assert.Equal(t, StateClosed, c.State())
	assert.False(t, c.enqueue([]byte("late")))

	// Closing again must be harmless.
	c.Close()
	assert.Equal(t, StateClosed, c.State())

	// Once closed, a connection never reopens.
	c.open()
	assert.Equal(t, StateClosed, c.State())
}

func TestSlowClientIsShedNotBlocking(t *testing.T) {
	hub := NewHub()
	slow := newTestClient("slow", "t1", 1)
	fast := newTestClient("fast", "t1", 8)
	hub.Register(slow)
	hub.Register(fast)

	hub.Broadcast("t1", []byte("one"))
	hub.Broadcast("t1", []byte("two"))

	// The fast client got both frames; the slow one overflowed its queue
	// and was dropped instead of stalling delivery.
	require.Equal(t, []byte("one"), recv(t, fast))
	require.Equal(t, []byte("two"), recv(t, fast))
	assert.Equal(t, StateClosed, slow.State())
}
