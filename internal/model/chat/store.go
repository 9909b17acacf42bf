package chat

import (
	"context"
	"errors"
)

// ErrConversationNotFound is returned when a conversation id does not resolve.
var ErrConversationNotFound = errors.New("conversation not found")

// Store persists conversations and their messages. Each call is atomic on
// its own; callers never rely on multi-call transactions.
type Store interface {
	// ActiveConversation returns the user's most recently updated active
	// conversation, or nil when there is none.
	ActiveConversation(ctx context.Context, userID string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// CreateConversation starts a new active conversation and retires any
	// other active conversation of the same user.
	CreateConversation(ctx context.Context, userID, title string) (Conversation, error)
	// OpenConversation returns the user's active conversation, creating one
	// titled title when there is none. Concurrent calls for the same user
	// agree on a single conversation.
	OpenConversation(ctx context.Context, userID, title string) (Conversation, error)
	AppendMessage(ctx context.Context, conversationID, senderID string, kind Kind, content string) (Message, error)
	// RecentMessages returns at most limit trailing messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// ListConversations returns the user's conversations, newest first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	// ListMessages returns every message of a conversation, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}
