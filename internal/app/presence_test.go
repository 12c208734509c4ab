package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Whisper/internal/domain"
)

func TestPresenceQueries(t *testing.T) {
	r := NewRegistry()
	p := NewPresenceService(r)

	r.Register("alice", "phone", &fakeConn{})
	r.Register("alice", "laptop", &fakeConn{})

	assert.True(t, p.IsOnline("alice"))
	assert.False(t, p.IsOnline("bob"))
	assert.ElementsMatch(t, []domain.DeviceID{"phone", "laptop"}, p.Devices("alice"))
	assert.Empty(t, p.Devices("bob"))
}

func TestPresenceSubscribers(t *testing.T) {
	r := NewRegistry()
	p := NewPresenceService(r)

	type event struct {
		user   domain.UserID
		online bool
	}
	var got []event
	p.Subscribe(func(user domain.UserID, online bool) {
		got = append(got, event{user, online})
	})

	r.Register("alice", "phone", &fakeConn{})
	r.Register("alice", "laptop", &fakeConn{})
	r.Unregister("alice", "laptop")
	r.Unregister("alice", "phone")

	require.Equal(t, []event{{"alice", true}, {"alice", false}}, got)
}
