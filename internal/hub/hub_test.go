package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeConn struct {
	id     string
	userID string

	mu       sync.Mutex
	payloads [][]byte
	reject   bool
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject {
		return false
	}
	c.payloads = append(c.payloads, payload)
	return true
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestJoinAndBroadcast(t *testing.T) {
	h := New(nil)
	a := &fakeConn{id: "conn-a", userID: "alice"}
	b := &fakeConn{id: "conn-b", userID: "bob"}

	h.Join(a, "c1")
	h.Join(b, "c1")
	h.Broadcast("c1", []byte("hello"), "")

	assert.Equal(t, 1, a.received())
	assert.Equal(t, 1, b.received())
}

func TestBroadcastExcludesConnection(t *testing.T) {
	h := New(nil)
	a := &fakeConn{id: "conn-a", userID: "alice"}
	b := &fakeConn{id: "conn-b", userID: "bob"}

	h.JoinAll(a, []string{"c1", "c2"})
	h.Join(b, "c1")
	h.Broadcast("c1", []byte("x"), "conn-a")

	assert.Equal(t, 0, a.received())
	assert.Equal(t, 1, b.received())
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := New(nil)
	a := &fakeConn{id: "conn-a", userID: "alice"}

	h.Join(a, "c1")
	h.Leave(a, "c1")
	h.Broadcast("c1", []byte("x"), "")

	assert.Equal(t, 0, a.received())
	assert.False(t, h.IsSubscribed("conn-a", "c1"))
}

func TestRemoveDropsAllRooms(t *testing.T) {
	h := New(nil)
	a := &fakeConn{id: "conn-a", userID: "alice"}

	h.JoinAll(a, []string{"c1", "c2", "c3"})
	assert.True(t, h.IsSubscribed("conn-a", "c2"))

	h.Remove(a)
	for _, chat := range []string{"c1", "c2", "c3"} {
		assert.False(t, h.IsSubscribed("conn-a", chat))
	}
	h.Broadcast("c1", []byte("x"), "")
	assert.Equal(t, 0, a.received())
}

func TestDeadConnectionDoesNotAbortBroadcast(t *testing.T) {
	h := New(nil)
	dead := &fakeConn{id: "conn-dead", userID: "alice", reject: true}
	live := &fakeConn{id: "conn-live", userID: "bob"}

	h.Join(dead, "c1")
	h.Join(live, "c1")
	h.Broadcast("c1", []byte("x"), "")

	assert.Equal(t, 1, live.received())
}

func TestConcurrentJoinLeave(t *testing.T) {
	h := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := &fakeConn{id: string(rune('a' + n)), userID: "u"}
			h.Join(c, "c1")
			h.Broadcast("c1", []byte("x"), "")
			h.Remove(c)
		}(i)
	}
	wg.Wait()
}
