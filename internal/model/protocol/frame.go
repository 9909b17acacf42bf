// Package protocol defines the JSON frames exchanged over the chat websocket.
package protocol

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
)

// Client-facing codes and messages. These strings are part of the wire
// contract and must stay stable.
const (
	CodeAuthOK       = "AUTH_OK"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenError   = "TOKEN_ERROR"

	InfoConnected     = "Connected"
	InfoAuthenticated = "Authenticated"

	ErrNotAuthenticated = "Not authenticated"
	ErrInvalidJSON      = "Invalid JSON format"
	ErrInternal         = "Internal server error"

	NotAuthenticatedHint = `send {"token": "<jwt>"} or reconnect with ?token=<jwt>`

	TypeHistory = "history"
	TypeMessage = "message"
)

// Inbound is a client frame. Every field is optional; pointer fields tell a
// missing key apart from an empty one.
type Inbound struct {
	Token          *string `json:"token,omitempty"`
	Message        *string `json:"message,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
}

// UnmarshalJSON accepts any JSON object. A field of an unexpected type is
// dropped rather than failing the frame: a non-string token or message is
// absent, and conversation_id may be a string or an integer.
func (in *Inbound) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*in = Inbound{
		Token:          optionalString(fields["token"]),
		Message:        optionalString(fields["message"]),
		ConversationID: conversationID(fields["conversation_id"]),
	}
	return nil
}

func optionalString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func conversationID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	id, err := n.Int64()
	if err != nil {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// Info acknowledges a lifecycle step.
type Info struct {
	Info string `json:"info"`
	Code string `json:"code,omitempty"`
}

// Error reports a recoverable failure; the connection stays open.
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// HistoryItem is one replayed message.
type HistoryItem struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// History replays recent messages to a freshly authenticated connection.
type History struct {
	Type     string        `json:"type"`
	Messages []HistoryItem `json:"messages"`
}

// Event is a fan-out frame delivered to every connection of a user.
type Event struct {
	Type      string    `json:"type"`
	Kind      chat.Kind `json:"kind"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Response carries the assistant reply when no fan-out group is available.
type Response struct {
	Response string `json:"response"`
}

func Connected() Info     { return Info{Info: InfoConnected} }
func Authenticated() Info { return Info{Info: InfoAuthenticated, Code: CodeAuthOK} }

func AuthFailed(reason, code string) Error { return Error{Error: reason, Code: code} }

func NotAuthenticated() Error {
	return Error{Error: ErrNotAuthenticated, Hint: NotAuthenticatedHint}
}

func InvalidJSON() Error   { return Error{Error: ErrInvalidJSON} }
func InternalError() Error { return Error{Error: ErrInternal} }

// NewHistory converts stored messages (oldest first) into a history frame.
func NewHistory(messages []chat.Message) History {
	items := make([]HistoryItem, 0, len(messages))
	for _, msg := range messages {
		items = append(items, HistoryItem{
			ID:        msg.ID,
			Content:   msg.Content,
			Sender:    string(msg.Kind),
			Timestamp: msg.CreatedAt,
		})
	}
	return History{Type: TypeHistory, Messages: items}
}

// NewEvent builds a fan-out frame for a persisted message.
func NewEvent(msg chat.Message) Event {
	return Event{Type: TypeMessage, Kind: msg.Kind, Content: msg.Content, Timestamp: msg.CreatedAt}
}
