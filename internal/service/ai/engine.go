package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/chat-gateway/backend/internal/config"
)

// Role of a turn in the history handed to an engine.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one chronological entry of a conversation history.
type Turn struct {
	Role    Role
	Content string
}

// Engine turns a conversation history into an assistant reply. The last turn
// is the message being answered.
type Engine interface {
	Complete(ctx context.Context, history []Turn) (string, error)
}

// ErrUnavailable is returned by engines that were not configured.
var ErrUnavailable = errors.New("assistant engine unavailable")

// Unavailable is the engine used when no provider is configured; every
// completion fails so callers fall back to their degraded reply.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, []Turn) (string, error) {
	return "", ErrUnavailable
}

// NewEngine builds the engine selected by cfg.Provider.
func NewEngine(ctx context.Context, cfg config.AIConfig, systemPrompt string) (Engine, error) {
	if !cfg.Enabled() {
		return Unavailable{}, nil
	}

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewEinoEngine(ctx, chatModel, systemPrompt)
	case config.ProviderOpenAI:
		return NewOpenAIEngine(cfg, systemPrompt)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// splitQuery separates the message being answered from the prior turns.
func splitQuery(history []Turn) ([]Turn, string, error) {
	if len(history) == 0 {
		return nil, "", errors.New("empty history")
	}
	last := history[len(history)-1]
	if last.Role != RoleUser {
		return nil, "", fmt.Errorf("last turn must be from the user, got %q", last.Role)
	}
	return history[:len(history)-1], last.Content, nil
}
