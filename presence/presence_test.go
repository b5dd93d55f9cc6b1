package presence_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scoutbase/recruiting-api/presence"
)

func TestRegistry_ConnectDisconnect(t *testing.T) {
	r := presence.NewRegistry()

	assert.False(t, r.IsOnline("u1"))

	cameOnline := r.Connect("u1", "conn-a")
	assert.True(t, cameOnline)
	assert.True(t, r.IsOnline("u1"))

	wentOffline := r.Disconnect("u1", "conn-a")
	assert.True(t, wentOffline)
	assert.False(t, r.IsOnline("u1"))
}

func TestRegistry_MultiDevice(t *testing.T) {
	r := presence.NewRegistry()

	assert.True(t, r.Connect("u1", "phone"))
	// second device must not re-announce the user as online
	assert.False(t, r.Connect("u1", "laptop"))

	// dropping one device keeps the user online
	assert.False(t, r.Disconnect("u1", "phone"))
	assert.True(t, r.IsOnline("u1"))

	// dropping the last device takes the user offline exactly once
	assert.True(t, r.Disconnect("u1", "laptop"))
	assert.False(t, r.IsOnline("u1"))
}

func TestRegistry_DisconnectUnknownConnection(t *testing.T) {
	r := presence.NewRegistry()

	assert.False(t, r.Disconnect("ghost", "conn"))

	r.Connect("u1", "conn-a")
	assert.False(t, r.Disconnect("u1", "never-registered"))
	assert.True(t, r.IsOnline("u1"))
}

func TestRegistry_OnlineSnapshot(t *testing.T) {
	r := presence.NewRegistry()

	r.Connect("u1", "a")
	r.Connect("u2", "b")
	r.Connect("u2", "c")

	online := r.Online()
	assert.Len(t, online, 2)
	assert.ElementsMatch(t, []string{"u1", "u2"}, online)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := presence.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			r.Connect("shared", connID)
			r.IsOnline("shared")
			r.Disconnect("shared", connID)
		}(i)
	}
	wg.Wait()

	assert.False(t, r.IsOnline("shared"))
	assert.Empty(t, r.Online())
}
