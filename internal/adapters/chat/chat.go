// Package chat owns the per-client websocket message loop: handshake
// authentication, registry lifecycle and frame dispatch.
package chat

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/adapters/ws"
	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

// Close codes in the 4xxx application range. 4001 matches the original
// client contract for a missing credential.
const (
	CloseAuthRequired = 4001
	CloseNoIdentity   = 4003
)

// Options tunes the per-connection transport behavior.
type Options struct {
	ReadLimit    int64
	SendBuffer   int
	WriteTimeout time.Duration
	PingPeriod   time.Duration
	PongWait     time.Duration
	MsgRateLimit int
	MsgRateEvery time.Duration
}

func (o *Options) withDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = o.PingPeriod + 6*time.Second
	}
	if o.MsgRateLimit <= 0 {
		o.MsgRateLimit = 30
	}
	if o.MsgRateEvery <= 0 {
		o.MsgRateEvery = 10 * time.Second
	}
}

type Controller struct {
	Auth     core.Authenticator
	Registry *app.Registry
	Fanout   *app.FanoutEngine
	Messages core.MessageStore
	Users    core.UserDirectory
	Opts     Options

	limiter *MessageRateLimiter
}

func NewController(auth core.Authenticator, registry *app.Registry, fanout *app.FanoutEngine,
	messages core.MessageStore, users core.UserDirectory, opts Options) *Controller {
	opts.withDefaults()
	return &Controller{
		Auth:     auth,
		Registry: registry,
		Fanout:   fanout,
		Messages: messages,
		Users:    users,
		Opts:     opts,
		limiter:  NewMessageRateLimiter(opts.MsgRateLimit, opts.MsgRateEvery),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleChat runs one client's session: Connecting, then Authenticated and
// Active after the credential checks out, Closed on any transport failure.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	device := domain.DeviceID(c.Param("device_id"))
	if device == "" {
		device = domain.DefaultDevice
	}
	token := c.Query("token")

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("ws upgrade")
		return
	}
	conn := ws.NewConn(sock, ctl.Opts.SendBuffer)

	// Handshake: no frame is processed before the credential is validated.
	if token == "" {
		conn.CloseWithCode(CloseAuthRequired, "Authentication required")
		return
	}
	user, err := ctl.Auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("handshake rejected")
		conn.CloseWithCode(CloseNoIdentity, "No matching identity")
		return
	}

	log.Info().Str("module", "chat").Str("user", string(user)).Str("device", string(device)).Msg("session active")

	if prev := ctl.Registry.Register(user, device, conn); prev != nil {
		// The slot holder lost the race; its loop will observe the close.
		prev.Close()
	}

	sess := &session{
		ctl:    ctl,
		user:   user,
		device: device,
		conn:   conn,
	}
	sess.sendEnvelope(core.ConnectionEstablished{
		Type:     core.TypeConnectionEstablished,
		Message:  "Connected to chat server",
		UserID:   user,
		DeviceID: device,
	})

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		conn.WritePump(ctx, ctl.Opts.WriteTimeout, ctl.Opts.PingPeriod)
	}()

	err = conn.ReadLoop(ctx, ctl.Opts.ReadLimit, ctl.Opts.PongWait, func(data []byte) {
		sess.handleFrame(ctx, data)
	})
	log.Info().Err(err).Str("module", "chat").Str("user", string(user)).Str("device", string(device)).Msg("session closed")
	cancel()
	sess.close()
}

// session is one Active connection. Frames are handled strictly in arrival
// order on the read goroutine.
type session struct {
	ctl    *Controller
	user   domain.UserID
	device domain.DeviceID
	conn   core.SignalConnection

	closeOnce sync.Once
}

// close runs the Closed-state cleanup exactly once. The compare-and-clear
// unregister keeps a replacing connection for the same (user, device) safe.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.ctl.Registry.UnregisterConn(s.user, s.device, s.conn)
		s.conn.Close()
	})
}

func (s *session) sendEnvelope(v any) {
	frame, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("encode envelope")
		return
	}
	_ = s.conn.TrySend(frame)
}

func (s *session) sendError(msg string) {
	s.sendEnvelope(core.NewError(msg))
}
