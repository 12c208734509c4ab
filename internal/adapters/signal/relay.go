// Package signal relays WebRTC negotiation frames between the participants
// of one call. It forwards SDP and ICE payloads without reading them.
package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/adapters/ws"
	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

// CloseCallNotFound matches the original client contract for attaching to
// an unknown or already ended call.
const CloseCallNotFound = 4004

type Options struct {
	ReadLimit    int64
	SendBuffer   int
	WriteTimeout time.Duration
	PingPeriod   time.Duration
	PongWait     time.Duration
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
}

type RelayController struct {
	Calls *app.CallManager
	Opts  Options
}

func NewRelayController(calls *app.CallManager, opts Options) *RelayController {
	opts.withDefaults()
	return &RelayController{Calls: calls, Opts: opts}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignaling attaches one socket to a call and relays its frames until
// it disconnects. A dead peer is pruned from the call; the call itself ends
// only through the call manager.
func (ctl *RelayController) HandleSignaling(ctx context.Context, c *gin.Context) {
	callID := domain.CallID(c.Param("call_id"))

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := ws.NewConn(sock, ctl.Opts.SendBuffer)

	if err := ctl.Calls.Attach(callID, conn); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("call", string(callID)).Msg("attach rejected")
		conn.CloseWithCode(CloseCallNotFound, "Call not found")
		return
	}
	log.Info().Str("module", "signal").Str("call", string(callID)).Msg("signaling connection attached")

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		conn.WritePump(ctx, ctl.Opts.WriteTimeout, ctl.Opts.PingPeriod)
	}()

	err = conn.ReadLoop(ctx, ctl.Opts.ReadLimit, ctl.Opts.PongWait, func(data []byte) {
		ctl.handleFrame(callID, conn, data)
	})
	log.Info().Err(err).Str("module", "signal").Str("call", string(callID)).Msg("signaling connection detached")
	cancel()
	ctl.Calls.Detach(callID, conn)
	conn.Close()
}

func (ctl *RelayController) handleFrame(callID domain.CallID, from core.SignalConnection, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("call", string(callID)).Msg("bad json frame")
		return
	}

	switch env.Type {
	case core.TypeOffer, core.TypeAnswer, core.TypeICECandidate:
		// Opaque passthrough; SDP and ICE contents are never inspected.
		ctl.forward(callID, from, core.Frame(data))
	case core.TypeMute:
		p := core.MuteFrame{Muted: true}
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		ctl.forwardEnvelope(callID, from, core.ParticipantMuted{
			Type:   core.TypeParticipantMuted,
			UserID: p.UserID,
			Muted:  p.Muted,
		})
	case core.TypeVideoToggle:
		var p core.VideoToggleFrame
		if err := json.Unmarshal(data, &p); err != nil {
			return
		}
		ctl.forwardEnvelope(callID, from, core.ParticipantVideo{
			Type:         core.TypeParticipantVideo,
			UserID:       p.UserID,
			VideoEnabled: p.VideoEnabled,
		})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signaling frame")
	}
}

func (ctl *RelayController) forwardEnvelope(callID domain.CallID, from core.SignalConnection, v any) {
	frame, err := core.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode envelope")
		return
	}
	ctl.forward(callID, from, frame)
}

// forward sends frame to every other connection of the call. No self-echo;
// a failed peer is detached without disturbing the rest.
func (ctl *RelayController) forward(callID domain.CallID, from core.SignalConnection, frame core.Frame) {
	for _, peer := range ctl.Calls.ConnsSnapshot(callID) {
		if peer == from {
			continue
		}
		if err := peer.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("call", string(callID)).Msg("relay send failed, pruning peer")
			ctl.Calls.Detach(callID, peer)
			peer.Close()
		}
	}
}
