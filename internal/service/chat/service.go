package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
)

var (
	ErrUserRequired    = errors.New("user id is required")
	ErrContentRequired = errors.New("message content is required")
)

// Service is an in-memory chat.Store used for development and tests.
type Service struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
	now           func() time.Time
	last          time.Time
}

var _ chat.Store = (*Service)(nil)

// NewService bootstraps an empty in-memory store.
func NewService() *Service {
	return &Service{
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ActiveConversation returns the user's most recently updated active conversation.
func (s *Service) ActiveConversation(_ context.Context, userID string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(userID), nil
}

func (s *Service) activeLocked(userID string) *chat.Conversation {
	var found *chat.Conversation
	for _, conv := range s.conversations {
		if conv.UserID != userID || !conv.IsActive {
			continue
		}
		if found == nil || conv.UpdatedAt.After(found.UpdatedAt) {
			c := conv
			found = &c
		}
	}
	return found
}

// GetConversation retrieves a conversation by identifier.
func (s *Service) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return &conv, nil
}

// CreateConversation provisions an active conversation and retires the user's previous ones.
func (s *Service) CreateConversation(_ context.Context, userID, title string) (chat.Conversation, error) {
	if userID == "" {
		return chat.Conversation{}, ErrUserRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(userID, title), nil
}

// OpenConversation returns the active conversation or creates one under a
// single lock.
func (s *Service) OpenConversation(_ context.Context, userID, title string) (chat.Conversation, error) {
	if userID == "" {
		return chat.Conversation{}, ErrUserRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if active := s.activeLocked(userID); active != nil {
		return *active, nil
	}
	return s.createLocked(userID, title), nil
}

func (s *Service) createLocked(userID, title string) chat.Conversation {
	now := s.tick()
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for id, existing := range s.conversations {
		if existing.UserID == userID && existing.IsActive {
			existing.IsActive = false
			s.conversations[id] = existing
		}
	}
	s.conversations[conv.ID] = conv
	s.messages[conv.ID] = make([]chat.Message, 0, 16)
	return conv
}

// AppendMessage adds a message to the conversation and bumps its UpdatedAt.
func (s *Service) AppendMessage(_ context.Context, conversationID, senderID string, kind chat.Kind, content string) (chat.Message, error) {
	if content == "" {
		return chat.Message{}, ErrContentRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.Message{}, chat.ErrConversationNotFound
	}

	now := s.tick()

	message := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           kind,
		Content:        content,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], message)

	conv.UpdatedAt = now
	s.conversations[conversationID] = conv
	return message, nil
}

// tick returns a strictly increasing timestamp so ordering survives a coarse
// clock. Callers hold s.mu.
func (s *Service) tick() time.Time {
	now := s.now()
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// RecentMessages returns the trailing limit messages, oldest first.
func (s *Service) RecentMessages(_ context.Context, conversationID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[conversationID]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}

	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}

	copied := make([]chat.Message, len(messages)-start)
	copy(copied, messages[start:])
	return copied, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Service) ListConversations(_ context.Context, userID string) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListMessages returns stored messages for the conversation.
func (s *Service) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	return s.RecentMessages(ctx, conversationID, 0)
}
