package app

import (
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

// shardCount trades memory for contention: register/unregister/send on
// unrelated users land on independent locks.
const shardCount = 32

type registryShard struct {
	mu    sync.RWMutex
	users map[domain.UserID]map[domain.DeviceID]core.SignalConnection
}

// DeviceConn is a snapshot pair returned by DeviceHandles.
type DeviceConn struct {
	Device domain.DeviceID
	Conn   core.SignalConnection
}

// Registry tracks live transport connections keyed by (user, device).
// At most one connection per pair; a second handshake replaces the first.
type Registry struct {
	shards   [shardCount]registryShard
	onChange func(domain.UserID, bool)
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].users = make(map[domain.UserID]map[domain.DeviceID]core.SignalConnection)
	}
	return r
}

// SetPresenceListener installs the presence edge callback. Must be called
// before the registry starts serving connections.
func (r *Registry) SetPresenceListener(fn func(user domain.UserID, online bool)) {
	r.onChange = fn
}

func (r *Registry) shard(user domain.UserID) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(user))
	return &r.shards[h.Sum32()%shardCount]
}

// Register installs conn for (user, device) and returns the connection it
// replaced, if any. The caller must close the returned handle.
func (r *Registry) Register(user domain.UserID, device domain.DeviceID, conn core.SignalConnection) core.SignalConnection {
	s := r.shard(user)
	s.mu.Lock()
	devices, online := s.users[user]
	if devices == nil {
		devices = make(map[domain.DeviceID]core.SignalConnection)
		s.users[user] = devices
	}
	prev := devices[device]
	devices[device] = conn
	s.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("device", string(device)).
		Bool("replaced", prev != nil).Msg("registered connection")
	if !online && r.onChange != nil {
		r.onChange(user, true)
	}
	return prev
}

// Unregister removes (user, device) regardless of which connection occupies
// the slot. Absent entries are a no-op.
func (r *Registry) Unregister(user domain.UserID, device domain.DeviceID) {
	r.remove(user, device, nil)
}

// UnregisterConn removes (user, device) only if conn still occupies the slot.
// Cleanup runs from two paths (session close and failed send); the
// compare-and-clear keeps a replacing connection safe from a stale cleanup.
func (r *Registry) UnregisterConn(user domain.UserID, device domain.DeviceID, conn core.SignalConnection) {
	r.remove(user, device, conn)
}

func (r *Registry) remove(user domain.UserID, device domain.DeviceID, expect core.SignalConnection) {
	s := r.shard(user)
	s.mu.Lock()
	devices, ok := s.users[user]
	if !ok {
		s.mu.Unlock()
		return
	}
	cur, ok := devices[device]
	if !ok || (expect != nil && cur != expect) {
		s.mu.Unlock()
		return
	}
	delete(devices, device)
	wentOffline := len(devices) == 0
	if wentOffline {
		delete(s.users, user)
	}
	s.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("device", string(device)).Msg("unregistered connection")
	if wentOffline && r.onChange != nil {
		r.onChange(user, false)
	}
}

// DeviceHandles returns a copy; safe to iterate under concurrent mutation.
func (r *Registry) DeviceHandles(user domain.UserID) []DeviceConn {
	s := r.shard(user)
	s.mu.RLock()
	devices := s.users[user]
	out := make([]DeviceConn, 0, len(devices))
	for id, conn := range devices {
		out = append(out, DeviceConn{Device: id, Conn: conn})
	}
	s.mu.RUnlock()
	return out
}

// Send delivers one frame to (user, device), best effort. A transport
// failure evicts the dead connection and reports false; stale sockets must
// never accumulate in the registry.
func (r *Registry) Send(user domain.UserID, device domain.DeviceID, frame core.Frame) bool {
	s := r.shard(user)
	s.mu.RLock()
	conn := s.users[user][device]
	s.mu.RUnlock()
	if conn == nil {
		return false
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("user", string(user)).Str("device", string(device)).
			Msg("send failed, pruning connection")
		r.remove(user, device, conn)
		conn.Close()
		return false
	}
	return true
}

// SendToUser fans one frame out to every registered device of user and
// returns how many sends were accepted.
func (r *Registry) SendToUser(user domain.UserID, frame core.Frame) int {
	delivered := 0
	for _, dc := range r.DeviceHandles(user) {
		if r.Send(user, dc.Device, frame) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) IsOnline(user domain.UserID) bool {
	s := r.shard(user)
	s.mu.RLock()
	_, ok := s.users[user]
	s.mu.RUnlock()
	return ok
}

func (r *Registry) OnlineUsers() []domain.UserID {
	out := make([]domain.UserID, 0)
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for user := range s.users {
			out = append(out, user)
		}
		s.mu.RUnlock()
	}
	return out
}

// Shutdown closes every live connection and empties the registry. Presence
// listeners are not notified; the process is going away.
func (r *Registry) Shutdown() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, devices := range s.users {
			for _, conn := range devices {
				conn.Close()
			}
		}
		s.users = make(map[domain.UserID]map[domain.DeviceID]core.SignalConnection)
		s.mu.Unlock()
	}
	log.Info().Str("module", "app.registry").Msg("registry shut down")
}
