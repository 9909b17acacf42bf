package ai

import (
	"context"
	"errors"
	"fmt"
	"log"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zhouzirui/chat-gateway/backend/internal/config"
)

// OpenAIEngine calls an OpenAI-compatible chat completions endpoint, such as
// Z.ai or OpenAI itself.
type OpenAIEngine struct {
	client       openai.Client
	model        string
	systemPrompt string
	temperature  *float64
	topP         *float64
	maxTokens    *int
}

var _ Engine = (*OpenAIEngine)(nil)

// NewOpenAIEngine builds a client from the AI configuration.
func NewOpenAIEngine(cfg config.AIConfig, systemPrompt string) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai provider requires AI_API_KEY")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIEngine{
		client:       openai.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		temperature:  cfg.Temperature,
		topP:         cfg.TopP,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

// Complete sends a single chat completion request.
func (e *OpenAIEngine) Complete(ctx context.Context, history []Turn) (string, error) {
	if _, _, err := splitQuery(history); err != nil {
		return "", err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if e.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(e.systemPrompt))
	}
	for _, turn := range history {
		switch turn.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(e.model),
		Messages: messages,
	}
	if e.temperature != nil {
		params.Temperature = openai.Float(*e.temperature)
	}
	if e.topP != nil {
		params.TopP = openai.Float(*e.topP)
	}
	if e.maxTokens != nil {
		params.MaxTokens = openai.Int(int64(*e.maxTokens))
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[ai] openai completion model=%s turns=%d length=%d", e.model, len(history), len(content))
	return content, nil
}
