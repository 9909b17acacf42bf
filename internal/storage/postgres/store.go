package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
)

const conversationColumns = `id, user_id, title, is_active, created_at, updated_at`

const messageColumns = `id, conversation_id, sender_id, kind, content, created_at`

const (
	maxConflictRetries = 3
	uniqueViolation    = "23505"
)

// Store is a chat.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ chat.Store = (*Store)(nil)

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanConversation(row pgx.Row) (chat.Conversation, error) {
	var c chat.Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func collectConversation(row pgx.CollectableRow) (chat.Conversation, error) {
	return scanConversation(row)
}

func collectMessage(row pgx.CollectableRow) (chat.Message, error) {
	var (
		m    chat.Message
		kind string
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &kind, &m.Content, &m.CreatedAt); err != nil {
		return chat.Message{}, err
	}
	m.Kind = chat.Kind(kind)
	return m, nil
}

// ActiveConversation returns the user's most recently updated active conversation.
func (s *Store) ActiveConversation(ctx context.Context, userID string) (*chat.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1 AND is_active
		ORDER BY updated_at DESC
		LIMIT 1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active conversation: %w", err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by identifier.
func (s *Store) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	conv, err := scanConversation(s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return &conv, nil
}

// CreateConversation inserts an active conversation and retires the user's
// other active ones in the same transaction. A concurrent create for the same
// user trips conversations_one_active_idx and is retried.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (chat.Conversation, error) {
	if userID == "" {
		return chat.Conversation{}, errors.New("user id is required")
	}
	if title == "" {
		title = chat.TitleFrom("")
	}

	var (
		conv chat.Conversation
		err  error
	)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		conv, err = s.createConversation(ctx, userID, title)
		if !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

func (s *Store) createConversation(ctx context.Context, userID, title string) (chat.Conversation, error) {
	var conv chat.Conversation
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE conversations SET is_active = FALSE
			WHERE user_id = $1 AND is_active`, userID); err != nil {
			return fmt.Errorf("retire conversations: %w", err)
		}

		var err error
		conv, err = scanConversation(tx.QueryRow(ctx, `
			INSERT INTO conversations (id, user_id, title, is_active)
			VALUES ($1, $2, $3, TRUE)
			RETURNING `+conversationColumns, uuid.NewString(), userID, title))
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		return nil
	})
	return conv, err
}

// OpenConversation returns the user's active conversation or inserts one.
// conversations_one_active_idx makes the insert a no-op when another caller
// won, in which case the winner's row is read back.
func (s *Store) OpenConversation(ctx context.Context, userID, title string) (chat.Conversation, error) {
	if userID == "" {
		return chat.Conversation{}, errors.New("user id is required")
	}
	if title == "" {
		title = chat.TitleFrom("")
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		conv, err := scanConversation(s.pool.QueryRow(ctx, `
			INSERT INTO conversations (id, user_id, title, is_active)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (user_id) WHERE is_active DO NOTHING
			RETURNING `+conversationColumns, uuid.NewString(), userID, title))
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return chat.Conversation{}, fmt.Errorf("insert conversation: %w", err)
		}

		active, err := s.ActiveConversation(ctx, userID)
		if err != nil {
			return chat.Conversation{}, err
		}
		if active != nil {
			return *active, nil
		}
	}
	return chat.Conversation{}, fmt.Errorf("open conversation for %s: active conversation kept changing", userID)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// AppendMessage inserts a message and bumps the conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID string, kind chat.Kind, content string) (chat.Message, error) {
	if content == "" {
		return chat.Message{}, errors.New("message content is required")
	}

	var msg chat.Message
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			UPDATE conversations SET updated_at = clock_timestamp()
			WHERE id = $1
			RETURNING id`, conversationID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ErrConversationNotFound
		}
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}

		rows, err := tx.Query(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, kind, content)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+messageColumns,
			uuid.NewString(), conversationID, senderID, string(kind), content)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		msg, err = pgx.CollectExactlyOneRow(rows, collectMessage)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// RecentMessages returns the trailing limit messages, oldest first. A
// non-positive limit returns every message.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM (
				SELECT seq, `+messageColumns+`
				FROM messages
				WHERE conversation_id = $1
				ORDER BY seq DESC
				LIMIT $2
			) recent
			ORDER BY seq ASC`, conversationID, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE conversation_id = $1
			ORDER BY seq ASC`, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, collectMessage)
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return messages, nil
}

// ListConversations returns the user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]chat.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}

	conversations, err := pgx.CollectRows(rows, collectConversation)
	if err != nil {
		return nil, fmt.Errorf("scan conversations: %w", err)
	}
	return conversations, nil
}

// ListMessages returns every message of the conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	return s.RecentMessages(ctx, conversationID, 0)
}
