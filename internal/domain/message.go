package domain

import "time"

type (
	ConversationID string
	MessageID      string
)

// Message is the persisted view of one chat message. Content travels as
// ciphertext; the server never decrypts it.
type Message struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	SenderID       UserID         `json:"sender_id"`
	Content        string         `json:"content"`
	MessageType    string         `json:"message_type"`
	CreatedAt      time.Time      `json:"created_at"`
	Sender         *User          `json:"sender,omitempty"`
}

// NewMessage carries what a client supplies when sending; the message store
// assigns the id and timestamp.
type NewMessage struct {
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	MessageType    string
}
