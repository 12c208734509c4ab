// Package store holds the in-memory persistence collaborators. Real
// deployments point the ports at the account/message services instead; this
// implementation backs the dev binary and the tests.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkeye/Whisper/internal/domain"
)

type Memory struct {
	mu      sync.RWMutex
	members map[domain.ConversationID][]domain.UserID
	users   map[domain.UserID]domain.User
	msgs    map[domain.MessageID]domain.Message
	reads   map[domain.MessageID]map[domain.UserID]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		members: make(map[domain.ConversationID][]domain.UserID),
		users:   make(map[domain.UserID]domain.User),
		msgs:    make(map[domain.MessageID]domain.Message),
		reads:   make(map[domain.MessageID]map[domain.UserID]time.Time),
	}
}

// PutUser seeds or updates a user record.
func (m *Memory) PutUser(u domain.User) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

// PutConversation seeds a conversation's member set.
func (m *Memory) PutConversation(id domain.ConversationID, members []domain.UserID) {
	m.mu.Lock()
	m.members[id] = append([]domain.UserID(nil), members...)
	m.mu.Unlock()
}

func (m *Memory) Members(_ context.Context, id domain.ConversationID) ([]domain.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.UserID(nil), m.members[id]...), nil
}

func (m *Memory) User(_ context.Context, id domain.UserID) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	out := u
	return &out, nil
}

func (m *Memory) CreateMessage(_ context.Context, in domain.NewMessage) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := domain.Message{
		ID:             domain.MessageID(uuid.NewString()),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		MessageType:    in.MessageType,
		CreatedAt:      time.Now().UTC(),
	}
	if sender, ok := m.users[in.SenderID]; ok {
		s := sender
		msg.Sender = &s
	}
	m.msgs[msg.ID] = msg
	return msg, nil
}

func (m *Memory) MarkRead(_ context.Context, id domain.MessageID, reader domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reads[id] == nil {
		m.reads[id] = make(map[domain.UserID]time.Time)
	}
	m.reads[id][reader] = time.Now().UTC()
	return nil
}

// ReadBy reports whether reader has marked the message read.
func (m *Memory) ReadBy(id domain.MessageID, reader domain.UserID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.reads[id][reader]
	return ok
}
