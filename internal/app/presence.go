package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/domain"
)

// PresenceListener receives went-online / went-offline facts. Only edges are
// reported: a second device for an online user is silent, and only the last
// device going away reports offline.
type PresenceListener func(user domain.UserID, online bool)

// PresenceService answers "is user X online" and "which devices" on top of
// the connection registry, and fans presence edges out to subscribers.
type PresenceService struct {
	registry *Registry

	mu        sync.RWMutex
	listeners []PresenceListener
}

func NewPresenceService(registry *Registry) *PresenceService {
	p := &PresenceService{registry: registry}
	registry.SetPresenceListener(p.dispatch)
	return p
}

// Subscribe registers a listener. Listeners run synchronously on the
// connection's goroutine and must not block.
func (p *PresenceService) Subscribe(fn PresenceListener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *PresenceService) dispatch(user domain.UserID, online bool) {
	log.Info().Str("module", "app.presence").Str("user", string(user)).Bool("online", online).Msg("presence changed")
	p.mu.RLock()
	listeners := p.listeners
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(user, online)
	}
}

func (p *PresenceService) IsOnline(user domain.UserID) bool {
	return p.registry.IsOnline(user)
}

func (p *PresenceService) OnlineUsers() []domain.UserID {
	return p.registry.OnlineUsers()
}

// Devices reports the device ids currently registered for user. Derived on
// demand; never persisted.
func (p *PresenceService) Devices(user domain.UserID) []domain.DeviceID {
	handles := p.registry.DeviceHandles(user)
	out := make([]domain.DeviceID, 0, len(handles))
	for _, dc := range handles {
		out = append(out, dc.Device)
	}
	return out
}
