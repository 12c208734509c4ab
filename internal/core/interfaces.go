package core

import (
	"context"

	"github.com/dkeye/Whisper/internal/domain"
)

// Frame is one fully framed wire unit; it is never split across sends.
type Frame []byte

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MembershipStore resolves conversation membership. An unknown conversation
// yields an empty slice, not an error.
type MembershipStore interface {
	Members(ctx context.Context, id domain.ConversationID) ([]domain.UserID, error)
}

// MessageStore is the persistence collaborator for chat messages. The chat
// loop must not advance past a failed CreateMessage.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg domain.NewMessage) (domain.Message, error)
	MarkRead(ctx context.Context, id domain.MessageID, readerID domain.UserID) error
}

// Authenticator validates the opaque bearer credential presented at
// handshake and resolves it to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.UserID, error)
}

// UserDirectory resolves display metadata for envelope enrichment.
type UserDirectory interface {
	User(ctx context.Context, id domain.UserID) (*domain.User, error)
}
