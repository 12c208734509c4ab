package core

import (
	"encoding/json"

	"github.com/dkeye/Whisper/internal/domain"
)

// Frame type discriminators, inbound and outbound. The signaling relay
// additionally forwards offer/answer/ice-candidate frames verbatim.
const (
	// chat, inbound
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypeMarkRead    = "mark_read"
	TypePing        = "ping"

	// chat, outbound
	TypeConnectionEstablished = "connection_established"
	TypeNewMessage            = "new_message"
	TypeMessageSent           = "message_sent"
	TypeTypingIndicator       = "typing_indicator"
	TypeMessageRead           = "message_read"
	TypePong                  = "pong"
	TypeError                 = "error"
	TypeIncomingCall          = "incoming_call"

	// call signaling
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICECandidate     = "ice-candidate"
	TypeMute             = "mute"
	TypeVideoToggle      = "video_toggle"
	TypeParticipantMuted = "participant_muted"
	TypeParticipantVideo = "participant_video"
	TypeCallEnded        = "call_ended"
)

// Envelope carries only the discriminator; payloads are decoded in a second
// pass once the type is known.
type Envelope struct {
	Type string `json:"type"`
}

// Inbound chat payloads.

type SendMessageFrame struct {
	ConversationID domain.ConversationID `json:"conversation_id"`
	Content        string                `json:"content"`
	MessageType    string                `json:"message_type"`
}

type TypingFrame struct {
	ConversationID domain.ConversationID `json:"conversation_id"`
}

type MarkReadFrame struct {
	MessageID      domain.MessageID      `json:"message_id"`
	ConversationID domain.ConversationID `json:"conversation_id"`
}

// Inbound call-control payloads. SDP and ICE frames are opaque and never
// decoded past the envelope.

type MuteFrame struct {
	UserID domain.UserID `json:"user_id"`
	Muted  bool          `json:"muted"`
}

type VideoToggleFrame struct {
	UserID       domain.UserID `json:"user_id"`
	VideoEnabled bool          `json:"video_enabled"`
}

// Outbound envelopes.

type ConnectionEstablished struct {
	Type     string          `json:"type"`
	Message  string          `json:"message"`
	UserID   domain.UserID   `json:"user_id"`
	DeviceID domain.DeviceID `json:"device_id"`
}

type MessageEnvelope struct {
	Type    string         `json:"type"`
	Message domain.Message `json:"message"`
}

type TypingIndicator struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversation_id"`
	UserID         domain.UserID         `json:"user_id"`
	IsTyping       bool                  `json:"is_typing"`
}

type MessageRead struct {
	Type           string                `json:"type"`
	MessageID      domain.MessageID      `json:"message_id"`
	ConversationID domain.ConversationID `json:"conversation_id"`
	ReadBy         domain.UserID         `json:"read_by"`
}

type ErrorEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type IncomingCall struct {
	Type         string          `json:"type"`
	CallID       domain.CallID   `json:"call_id"`
	CallerID     domain.UserID   `json:"caller_id"`
	CallerName   string          `json:"caller_name"`
	CallType     domain.CallType `json:"call_type"`
	SignalingURL string          `json:"signaling_url"`
}

type ParticipantMuted struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"user_id"`
	Muted  bool          `json:"muted"`
}

type ParticipantVideo struct {
	Type         string        `json:"type"`
	UserID       domain.UserID `json:"user_id"`
	VideoEnabled bool          `json:"video_enabled"`
}

type CallEndedEnvelope struct {
	Type   string        `json:"type"`
	CallID domain.CallID `json:"call_id"`
}

// Encode marshals an envelope into a single wire frame. Fanout paths encode
// once and hand the same frame to every recipient.
func Encode(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}

func NewError(msg string) ErrorEnvelope {
	return ErrorEnvelope{Type: TypeError, Message: msg}
}

func NewPong() Envelope {
	return Envelope{Type: TypePong}
}
