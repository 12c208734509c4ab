package signal

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
	closed bool
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) sent() []core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Frame(nil), f.frames...)
}

func setupCall(t *testing.T) (*RelayController, domain.CallID, *fakeConn, *fakeConn, *fakeConn) {
	t.Helper()
	calls := app.NewCallManager(8)
	sess, err := calls.CreateCall("alice", []domain.UserID{"bob", "carol"}, domain.CallAudio)
	require.NoError(t, err)

	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	require.NoError(t, calls.Attach(sess.ID, a))
	require.NoError(t, calls.Attach(sess.ID, b))
	require.NoError(t, calls.Attach(sess.ID, c))

	return NewRelayController(calls, Options{}), sess.ID, a, b, c
}

func TestRelayForwardsVerbatim(t *testing.T) {
	ctl, callID, a, b, c := setupCall(t)

	raw := []byte(`{"type":"ice-candidate","candidate":"X","sdpMid":"0"}`)
	ctl.handleFrame(callID, a, raw)

	require.Len(t, b.sent(), 1)
	assert.Equal(t, core.Frame(raw), b.sent()[0], "forwarded byte for byte")
	require.Len(t, c.sent(), 1)
	assert.Empty(t, a.sent(), "no self-echo")
}

func TestRelayOfferAnswer(t *testing.T) {
	ctl, callID, a, b, _ := setupCall(t)

	ctl.handleFrame(callID, a, []byte(`{"type":"offer","sdp":"v=0..."}`))
	ctl.handleFrame(callID, b, []byte(`{"type":"answer","sdp":"v=0..."}`))

	require.Len(t, b.sent(), 1)
	require.Len(t, a.sent(), 1)
	var env core.Envelope
	require.NoError(t, json.Unmarshal(a.sent()[0], &env))
	assert.Equal(t, core.TypeAnswer, env.Type)
}

func TestRelayMuteRewrap(t *testing.T) {
	ctl, callID, a, b, _ := setupCall(t)

	// muted defaults to true when omitted.
	ctl.handleFrame(callID, a, []byte(`{"type":"mute","user_id":"alice"}`))

	require.Len(t, b.sent(), 1)
	var env core.ParticipantMuted
	require.NoError(t, json.Unmarshal(b.sent()[0], &env))
	assert.Equal(t, core.TypeParticipantMuted, env.Type)
	assert.Equal(t, domain.UserID("alice"), env.UserID)
	assert.True(t, env.Muted)
}

func TestRelayVideoToggleRewrap(t *testing.T) {
	ctl, callID, a, b, _ := setupCall(t)

	ctl.handleFrame(callID, a, []byte(`{"type":"video_toggle","user_id":"alice","video_enabled":true}`))

	var env core.ParticipantVideo
	require.NoError(t, json.Unmarshal(b.sent()[0], &env))
	assert.Equal(t, core.TypeParticipantVideo, env.Type)
	assert.True(t, env.VideoEnabled)
}

func TestRelayPrunesDeadPeerOnly(t *testing.T) {
	ctl, callID, a, b, c := setupCall(t)
	b.fail = true

	ctl.handleFrame(callID, a, []byte(`{"type":"offer","sdp":"v=0"}`))

	assert.True(t, b.closed, "dead peer closed")
	require.Len(t, c.sent(), 1, "others still receive")
	assert.Len(t, ctl.Calls.ConnsSnapshot(callID), 2, "only the dead entry removed")
}

func TestRelayIgnoresUnknownAndMalformed(t *testing.T) {
	ctl, callID, a, b, _ := setupCall(t)

	ctl.handleFrame(callID, a, []byte(`not json`))
	ctl.handleFrame(callID, a, []byte(`{"type":"dance"}`))

	assert.Empty(t, b.sent())
}
