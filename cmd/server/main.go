package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/adapters/auth"
	"github.com/dkeye/Whisper/internal/adapters/chat"
	router "github.com/dkeye/Whisper/internal/adapters/http"
	relay "github.com/dkeye/Whisper/internal/adapters/signal"
	"github.com/dkeye/Whisper/internal/adapters/store"
	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/config"
	"github.com/dkeye/Whisper/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	registry := app.NewRegistry()
	presence := app.NewPresenceService(registry)
	presence.Subscribe(func(user domain.UserID, online bool) {
		log.Info().Str("module", "main").Str("user", string(user)).Bool("online", online).Msg("presence")
	})

	mem := store.NewMemory()
	fanout := app.NewFanoutEngine(mem, registry)
	calls := app.NewCallManager(cfg.EndedCallCache)
	authn := auth.NewJWT(cfg.Secret)

	chatCtl := chat.NewController(authn, registry, fanout, mem, mem, chat.Options{
		ReadLimit:    cfg.ReadLimit,
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: cfg.WriteTimeout,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		MsgRateLimit: cfg.MsgRateLimit,
		MsgRateEvery: cfg.MsgRateInterval,
	})
	relayCtl := relay.NewRelayController(calls, relay.Options{
		ReadLimit:    cfg.ReadLimit,
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: cfg.WriteTimeout,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Auth:     authn,
		Users:    mem,
		Registry: registry,
		Presence: presence,
		Calls:    calls,
		Chat:     chatCtl,
		Relay:    relayCtl,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Whisper server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	calls.Shutdown()
	registry.Shutdown()
	log.Info().Msg("Server exited gracefully")
}
