package chat

import "time"

// Kind tells who authored a message.
type Kind string

const (
	KindUser Kind = "user"
	KindBot  Kind = "bot"
)

// Message persists individual turns of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Kind           Kind      `json:"kind"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}
