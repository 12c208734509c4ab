package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/adapters/chat"
	"github.com/dkeye/Whisper/internal/adapters/signal"
	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/config"
	"github.com/dkeye/Whisper/internal/core"
)

// Deps bundles everything the HTTP surface talks to.
type Deps struct {
	Auth     core.Authenticator
	Users    core.UserDirectory
	Registry *app.Registry
	Presence *app.PresenceService
	Calls    *app.CallManager
	Chat     *chat.Controller
	Relay    *signal.RelayController
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api/v1")

	// Websocket endpoints authenticate inside the handshake, not here; the
	// close code is part of the client contract.
	api.GET("/ws/chat/:device_id", func(c *gin.Context) {
		deps.Chat.HandleChat(ctx, c)
	})
	api.GET("/calls/:call_id/signaling", func(c *gin.Context) {
		deps.Relay.HandleSignaling(ctx, c)
	})

	authed := api.Group("")
	authed.Use(BearerAuth(deps.Auth))

	calls := &CallHandlers{Calls: deps.Calls, Registry: deps.Registry, Users: deps.Users}
	authed.POST("/calls/initiate", calls.Initiate)
	authed.POST("/calls/:call_id/join", calls.Join)
	authed.POST("/calls/:call_id/end", calls.End)
	authed.GET("/calls/:call_id", calls.Get)
	authed.GET("/calls", calls.ListActive)

	presence := &PresenceHandlers{Presence: deps.Presence}
	authed.GET("/presence/online-users", presence.OnlineUsers)
	authed.GET("/presence/users/:user_id/status", presence.UserStatus)

	return r
}
