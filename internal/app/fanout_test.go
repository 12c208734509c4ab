package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

type fakeMembers struct {
	members map[domain.ConversationID][]domain.UserID
	err     error
}

func (f *fakeMembers) Members(_ context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[id], nil
}

func TestFanoutExcludesSenderAndOutsiders(t *testing.T) {
	r := NewRegistry()
	alice := &fakeConn{}
	bobPhone := &fakeConn{}
	bobLaptop := &fakeConn{}
	carol := &fakeConn{}
	outsider := &fakeConn{}
	r.Register("alice", "phone", alice)
	r.Register("bob", "phone", bobPhone)
	r.Register("bob", "laptop", bobLaptop)
	r.Register("carol", "phone", carol)
	r.Register("mallory", "phone", outsider)

	f := NewFanoutEngine(&fakeMembers{members: map[domain.ConversationID][]domain.UserID{
		"conv-x": {"alice", "bob", "carol"},
	}}, r)

	frame := core.Frame(`{"type":"new_message"}`)
	require.NoError(t, f.DeliverToConversation(context.Background(), "conv-x", frame, "alice"))

	assert.Empty(t, alice.sent(), "sender is excluded")
	assert.Len(t, bobPhone.sent(), 1)
	assert.Len(t, bobLaptop.sent(), 1)
	assert.Len(t, carol.sent(), 1)
	assert.Empty(t, outsider.sent(), "non-members receive nothing")
}

func TestFanoutEmptyConversation(t *testing.T) {
	r := NewRegistry()
	f := NewFanoutEngine(&fakeMembers{members: map[domain.ConversationID][]domain.UserID{}}, r)
	assert.NoError(t, f.DeliverToConversation(context.Background(), "ghost", core.Frame(`x`), ""))
}

func TestFanoutMembershipError(t *testing.T) {
	r := NewRegistry()
	f := NewFanoutEngine(&fakeMembers{err: errors.New("store down")}, r)
	err := f.DeliverToConversation(context.Background(), "conv-x", core.Frame(`x`), "")
	assert.Error(t, err)
}

func TestFanoutDeadRecipientDoesNotAbort(t *testing.T) {
	r := NewRegistry()
	dead := &fakeConn{fail: true}
	live := &fakeConn{}
	r.Register("bob", "phone", dead)
	r.Register("carol", "phone", live)

	f := NewFanoutEngine(&fakeMembers{members: map[domain.ConversationID][]domain.UserID{
		"conv-x": {"alice", "bob", "carol"},
	}}, r)

	require.NoError(t, f.DeliverToConversation(context.Background(), "conv-x", core.Frame(`x`), "alice"))
	assert.Len(t, live.sent(), 1, "delivery continues past the dead connection")
	assert.Empty(t, r.DeviceHandles("bob"), "dead connection was pruned")
}
