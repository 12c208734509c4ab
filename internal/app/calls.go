package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

// CallManager owns call sessions, the one-active-call reservation and the
// per-call signaling connection lists. The three views span one invariant,
// so a single mutex updates them together; a user must never be joined in
// one map and unreserved in another.
type CallManager struct {
	mu       sync.Mutex
	sessions map[domain.CallID]*domain.CallSession
	userCall map[domain.UserID]domain.CallID
	conns    map[domain.CallID][]core.SignalConnection

	// ended keeps recently finished sessions queryable after eviction.
	ended *lru.Cache[domain.CallID, domain.CallSession]
}

func NewCallManager(historySize int) *CallManager {
	if historySize <= 0 {
		historySize = 1024
	}
	ended, _ := lru.New[domain.CallID, domain.CallSession](historySize)
	return &CallManager{
		sessions: make(map[domain.CallID]*domain.CallSession),
		userCall: make(map[domain.UserID]domain.CallID),
		conns:    make(map[domain.CallID][]core.SignalConnection),
		ended:    ended,
	}
}

// CreateCall reserves the caller and every invitee against the one-active-
// call invariant and registers a new session. The participant set is fixed
// here; there are no late invites.
func (m *CallManager) CreateCall(caller domain.UserID, invitees []domain.UserID, callType domain.CallType) (domain.CallSession, error) {
	if callType != domain.CallVideo {
		callType = domain.CallAudio
	}
	participants := make([]domain.UserID, 0, len(invitees)+1)
	participants = append(participants, caller)
	for _, id := range invitees {
		if id != caller && !contains(participants, id) {
			participants = append(participants, id)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.userCall[caller]; busy {
		return domain.CallSession{}, domain.ErrAlreadyInCall
	}
	for _, id := range participants[1:] {
		if _, busy := m.userCall[id]; busy {
			return domain.CallSession{}, fmt.Errorf("%s: %w", id, domain.ErrParticipantBusy)
		}
	}

	sess := &domain.CallSession{
		ID:           domain.CallID(uuid.NewString()),
		CallerID:     caller,
		Participants: participants,
		Type:         callType,
		Status:       domain.CallInitiating,
		StartedAt:    time.Now().UTC(),
	}
	m.sessions[sess.ID] = sess
	for _, id := range participants {
		m.userCall[id] = sess.ID
	}
	m.conns[sess.ID] = nil

	log.Info().Str("module", "app.calls").Str("call", string(sess.ID)).Str("caller", string(caller)).
		Int("participants", len(participants)).Str("type", string(callType)).Msg("call created")
	return snapshot(sess), nil
}

// JoinCall admits user into an existing session.
func (m *CallManager) JoinCall(id domain.CallID, user domain.UserID) (domain.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return domain.CallSession{}, domain.ErrNotFound
	}
	if !sess.HasParticipant(user) {
		return domain.CallSession{}, domain.ErrForbidden
	}
	if other, busy := m.userCall[user]; busy && other != id {
		return domain.CallSession{}, domain.ErrAlreadyInCall
	}
	m.userCall[user] = id
	sess.Status = domain.CallActive
	return snapshot(sess), nil
}

// EndCall finishes the session, releases every reservation and drops all of
// its signaling connections. Survivors get an advisory call_ended frame
// before their handles close.
func (m *CallManager) EndCall(id domain.CallID, requester domain.UserID) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	if !sess.HasParticipant(requester) {
		m.mu.Unlock()
		return domain.ErrForbidden
	}

	now := time.Now().UTC()
	sess.Status = domain.CallEnded
	sess.EndedAt = &now
	for _, p := range sess.Participants {
		if m.userCall[p] == id {
			delete(m.userCall, p)
		}
	}
	dropped := m.conns[id]
	delete(m.conns, id)
	delete(m.sessions, id)
	m.ended.Add(id, snapshot(sess))
	m.mu.Unlock()

	if frame, err := core.Encode(core.CallEndedEnvelope{Type: core.TypeCallEnded, CallID: id}); err == nil {
		for _, conn := range dropped {
			_ = conn.TrySend(frame)
		}
	}
	for _, conn := range dropped {
		conn.Close()
	}

	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("requester", string(requester)).
		Int("dropped_conns", len(dropped)).Msg("call ended")
	return nil
}

// Get returns an active session, or a recently ended one from history.
func (m *CallManager) Get(id domain.CallID) (domain.CallSession, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		out := snapshot(sess)
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()
	if sess, ok := m.ended.Get(id); ok {
		return sess, nil
	}
	return domain.CallSession{}, domain.ErrNotFound
}

// ActiveCallFor is the O(1) reservation lookup.
func (m *CallManager) ActiveCallFor(user domain.UserID) (domain.CallID, bool) {
	m.mu.Lock()
	id, ok := m.userCall[user]
	m.mu.Unlock()
	return id, ok
}

// ActiveCallsFor lists the sessions user is currently reserved in. The
// invariant caps this at one entry.
func (m *CallManager) ActiveCallsFor(user domain.UserID) []domain.CallSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.userCall[user]
	if !ok {
		return nil
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return []domain.CallSession{snapshot(sess)}
}

// Attach admits a signaling connection to an active call.
func (m *CallManager) Attach(id domain.CallID, conn core.SignalConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	m.conns[id] = append(m.conns[id], conn)
	return nil
}

// Detach removes one signaling connection; the call itself is unaffected.
func (m *CallManager) Detach(id domain.CallID, conn core.SignalConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.conns[id]
	for i, c := range list {
		if c == conn {
			m.conns[id] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// ConnsSnapshot copies the connection list for safe iteration during relay.
func (m *CallManager) ConnsSnapshot(id domain.CallID) []core.SignalConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.conns[id]
	out := make([]core.SignalConnection, len(list))
	copy(out, list)
	return out
}

// Shutdown force-ends every active call.
func (m *CallManager) Shutdown() {
	m.mu.Lock()
	ids := make([]domain.CallID, 0, len(m.sessions))
	callers := make([]domain.UserID, 0, len(m.sessions))
	for id, sess := range m.sessions {
		ids = append(ids, id)
		callers = append(callers, sess.CallerID)
	}
	m.mu.Unlock()
	for i, id := range ids {
		_ = m.EndCall(id, callers[i])
	}
	log.Info().Str("module", "app.calls").Int("ended", len(ids)).Msg("call manager shut down")
}

func snapshot(sess *domain.CallSession) domain.CallSession {
	out := *sess
	out.Participants = append([]domain.UserID(nil), sess.Participants...)
	return out
}

func contains(ids []domain.UserID, id domain.UserID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
