package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultTitle  = "New Conversation"
	maxTitleRunes = 60
)

// Conversation groups the messages exchanged between a user and the assistant.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TitleFrom derives a conversation title from its opening message.
func TitleFrom(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(content) <= maxTitleRunes {
		return content
	}
	return string([]rune(content)[:maxTitleRunes])
}
