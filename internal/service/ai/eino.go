package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// EinoEngine runs completions through an eino chain: a chat template with
// the system prompt, the prior history, and the user query, feeding a chat model.
type EinoEngine struct {
	systemPrompt string
	chain        compose.Runnable[map[string]any, *schema.Message]
}

var _ Engine = (*EinoEngine)(nil)

// NewEinoEngine compiles the chain around chatModel.
func NewEinoEngine(ctx context.Context, chatModel model.ChatModel, systemPrompt string) (*EinoEngine, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &EinoEngine{systemPrompt: systemPrompt, chain: runnable}, nil
}

// Complete runs the chain once; there are no retries.
func (e *EinoEngine) Complete(ctx context.Context, history []Turn) (string, error) {
	prior, query, err := splitQuery(history)
	if err != nil {
		return "", err
	}

	response, err := e.chain.Invoke(ctx, map[string]any{
		"system":  e.systemPrompt,
		"history": toSchemaMessages(prior),
		"query":   query,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	log.Printf("[ai] eino completion turns=%d length=%d", len(history), len(response.Content))
	return response.Content, nil
}

func toSchemaMessages(turns []Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return history
}
