package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

// handleFrame decodes one inbound frame and dispatches on its type.
// Protocol errors are recoverable: they answer with an error envelope and
// the session stays Active.
func (s *session) handleFrame(ctx context.Context, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "chat").Str("user", string(s.user)).Msg("bad json frame")
		s.sendError("Invalid JSON frame")
		return
	}

	switch env.Type {
	case core.TypeSendMessage:
		s.handleSendMessage(ctx, data)
	case core.TypeTypingStart:
		s.handleTyping(ctx, data, true)
	case core.TypeTypingStop:
		s.handleTyping(ctx, data, false)
	case core.TypeMarkRead:
		s.handleMarkRead(ctx, data)
	case core.TypePing:
		s.sendEnvelope(core.NewPong())
	default:
		log.Warn().Str("module", "chat").Str("type", env.Type).Msg("unknown frame type")
		s.sendError(fmt.Sprintf("Unknown message type: %s", env.Type))
	}
}

func (s *session) handleSendMessage(ctx context.Context, data []byte) {
	if !s.ctl.limiter.Allow(s.user) {
		s.sendError("Message rate limit exceeded")
		return
	}

	var p core.SendMessageFrame
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError("Malformed send_message payload")
		return
	}
	if p.ConversationID == "" || p.Content == "" {
		s.sendError("Missing conversation_id or content")
		return
	}
	if p.MessageType == "" {
		p.MessageType = "text"
	}

	msg, err := s.ctl.Messages.CreateMessage(ctx, domain.NewMessage{
		ConversationID: p.ConversationID,
		SenderID:       s.user,
		Content:        p.Content,
		MessageType:    p.MessageType,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Str("user", string(s.user)).Msg("create message")
		s.sendError(fmt.Sprintf("Failed to send message: %s", err))
		return
	}
	if msg.Sender == nil {
		if sender, err := s.ctl.Users.User(ctx, s.user); err == nil {
			msg.Sender = sender
		}
	}

	frame, err := core.Encode(core.MessageEnvelope{Type: core.TypeNewMessage, Message: msg})
	if err != nil {
		s.sendError("Failed to send message")
		return
	}
	if err := s.ctl.Fanout.DeliverToConversation(ctx, p.ConversationID, frame, s.user); err != nil {
		log.Error().Err(err).Str("module", "chat").Str("conversation", string(p.ConversationID)).Msg("fanout")
	}

	s.sendEnvelope(core.MessageEnvelope{Type: core.TypeMessageSent, Message: msg})
}

func (s *session) handleTyping(ctx context.Context, data []byte, typing bool) {
	var p core.TypingFrame
	if err := json.Unmarshal(data, &p); err != nil || p.ConversationID == "" {
		return
	}
	frame, err := core.Encode(core.TypingIndicator{
		Type:           core.TypeTypingIndicator,
		ConversationID: p.ConversationID,
		UserID:         s.user,
		IsTyping:       typing,
	})
	if err != nil {
		return
	}
	if err := s.ctl.Fanout.DeliverToConversation(ctx, p.ConversationID, frame, s.user); err != nil {
		log.Error().Err(err).Str("module", "chat").Str("conversation", string(p.ConversationID)).Msg("typing fanout")
	}
}

func (s *session) handleMarkRead(ctx context.Context, data []byte) {
	var p core.MarkReadFrame
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		return
	}

	// Read-status persistence is the store's business; the receipt is not
	// broadcast when it fails.
	if err := s.ctl.Messages.MarkRead(ctx, p.MessageID, s.user); err != nil {
		log.Error().Err(err).Str("module", "chat").Str("message", string(p.MessageID)).Msg("mark read")
		s.sendError(fmt.Sprintf("Failed to mark read: %s", err))
		return
	}
	if p.ConversationID == "" {
		return
	}

	frame, err := core.Encode(core.MessageRead{
		Type:           core.TypeMessageRead,
		MessageID:      p.MessageID,
		ConversationID: p.ConversationID,
		ReadBy:         s.user,
	})
	if err != nil {
		return
	}
	if err := s.ctl.Fanout.DeliverToConversation(ctx, p.ConversationID, frame, s.user); err != nil {
		log.Error().Err(err).Str("module", "chat").Str("conversation", string(p.ConversationID)).Msg("read receipt fanout")
	}
}
