// Package ws wraps a gorilla websocket with the buffered-writer discipline
// both realtime adapters share: one reader, one writer, a bounded send
// queue, and liveness pings.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Conn owns the underlying socket. TrySend never blocks: a full queue is a
// slow consumer and counts as a transport failure for the caller to handle.
type Conn struct {
	ws   *websocket.Conn
	send chan core.Frame

	mu         sync.RWMutex
	closed     bool
	lastActive time.Time
}

func NewConn(ws *websocket.Conn, sendBuffer int) *Conn {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Conn{
		ws:         ws,
		send:       make(chan core.Frame, sendBuffer),
		lastActive: time.Now(),
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close is idempotent; both cleanup paths may race into it.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

// CloseWithCode sends a close frame before tearing the socket down, so the
// client can distinguish rejection reasons.
func (c *Conn) CloseWithCode(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.Close()
}

func (c *Conn) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActive
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// WritePump drains the send queue onto the socket and keeps the peer alive
// with periodic pings. One writer per socket, gorilla requires it.
func (c *Conn) WritePump(ctx context.Context, writeTimeout, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "ws").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debug().Err(err).Str("module", "ws").Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

// ReadLoop feeds inbound frames to handle, one at a time; a frame is fully
// handled before the next read. Returns when the transport fails or ctx is
// canceled. Per-frame protocol errors are the handler's business and must
// not surface here.
func (c *Conn) ReadLoop(ctx context.Context, readLimit int64, pongWait time.Duration, handle func(data []byte)) error {
	if readLimit > 0 {
		c.ws.SetReadLimit(readLimit)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				return err
			}
			c.touch()
			_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
			handle(data)
		}
	}
}
