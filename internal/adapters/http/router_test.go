package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Whisper/internal/adapters/auth"
	"github.com/dkeye/Whisper/internal/adapters/chat"
	"github.com/dkeye/Whisper/internal/adapters/signal"
	"github.com/dkeye/Whisper/internal/adapters/store"
	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/config"
	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) sent() []core.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Frame(nil), f.frames...)
}

type testServer struct {
	router   *gin.Engine
	authn    *auth.JWTAuthenticator
	registry *app.Registry
	calls    *app.CallManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := app.NewRegistry()
	presence := app.NewPresenceService(registry)
	mem := store.NewMemory()
	mem.PutUser(domain.User{ID: "alice", Username: "Alice"})
	mem.PutUser(domain.User{ID: "bob", Username: "Bob"})
	calls := app.NewCallManager(8)
	authn := auth.NewJWT("test-secret")
	fanout := app.NewFanoutEngine(mem, registry)

	cfg := &config.Config{Mode: "test"}
	r := SetupRouter(context.Background(), cfg, Deps{
		Auth:     authn,
		Users:    mem,
		Registry: registry,
		Presence: presence,
		Calls:    calls,
		Chat:     chat.NewController(authn, registry, fanout, mem, mem, chat.Options{}),
		Relay:    signal.NewRelayController(calls, signal.Options{}),
	})
	return &testServer{router: r, authn: authn, registry: registry, calls: calls}
}

func (s *testServer) do(t *testing.T, method, path, body string, user domain.UserID) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		token, err := s.authn.Issue(user, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCallsRequireAuth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/calls/initiate", `{"participants":["bob"]}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInitiateCall(t *testing.T) {
	s := newTestServer(t)
	bobPhone := &fakeConn{}
	s.registry.Register("bob", "phone", bobPhone)

	w := s.do(t, http.MethodPost, "/api/v1/calls/initiate", `{"participants":["bob"],"call_type":"video"}`, "alice")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	callID := body["call_id"].(string)
	assert.Equal(t, "initiated", body["status"])
	assert.Equal(t, "video", body["type"])
	assert.Equal(t, "/api/v1/calls/"+callID+"/signaling", body["signaling_url"])

	// The online invitee got an incoming_call push.
	frames := bobPhone.sent()
	require.Len(t, frames, 1)
	var push core.IncomingCall
	require.NoError(t, json.Unmarshal(frames[0], &push))
	assert.Equal(t, core.TypeIncomingCall, push.Type)
	assert.Equal(t, domain.CallID(callID), push.CallID)
	assert.Equal(t, "Alice", push.CallerName)
}

func TestInitiateOfflineInviteeStillSucceeds(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/calls/initiate", `{"participants":["bob"]}`, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["call_id"])
}

func TestInitiateConflict(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/calls/initiate", `{"participants":["bob"]}`, "alice")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/calls/initiate", `{"participants":["carol"]}`, "alice")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestJoinAndEndCall(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/calls/initiate", `{"participants":["bob"]}`, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	callID := decode(t, w)["call_id"].(string)

	w = s.do(t, http.MethodPost, "/api/v1/calls/"+callID+"/join", "", "mallory")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/calls/missing/join", "", "bob")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/calls/"+callID+"/join", "", "bob")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "joined", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, "/api/v1/calls", "", "bob")
	require.Equal(t, http.StatusOK, w.Code)
	active := decode(t, w)["active_calls"].([]any)
	require.Len(t, active, 1)

	w = s.do(t, http.MethodPost, "/api/v1/calls/"+callID+"/end", "", "bob")
	require.Equal(t, http.StatusOK, w.Code)

	// Ended calls stay readable for a while, but are no longer active.
	w = s.do(t, http.MethodGet, "/api/v1/calls/"+callID, "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ended", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, "/api/v1/calls", "", "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["active_calls"])
}

func TestGetCallForbiddenForOutsider(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/calls/initiate", `{"participants":["bob"]}`, "alice")
	callID := decode(t, w)["call_id"].(string)

	w = s.do(t, http.MethodGet, "/api/v1/calls/"+callID, "", "mallory")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPresenceEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.registry.Register("alice", "phone", &fakeConn{})

	w := s.do(t, http.MethodGet, "/api/v1/presence/online-users", "", "bob")
	require.Equal(t, http.StatusOK, w.Code)
	users := decode(t, w)["online_users"].([]any)
	assert.Equal(t, []any{"alice"}, users)

	w = s.do(t, http.MethodGet, "/api/v1/presence/users/alice/status", "", "bob")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["is_online"])

	w = s.do(t, http.MethodGet, "/api/v1/presence/users/carol/status", "", "bob")
	assert.Equal(t, false, decode(t, w)["is_online"])
}

func TestBadBearerHeader(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence/online-users", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/presence/online-users", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
