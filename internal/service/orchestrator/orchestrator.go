// Package orchestrator runs one chat exchange: persist the user's message,
// ask the assistant for a reply, persist the reply and deliver both.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/protocol"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/fanout"
)

// ErrPersistence wraps store failures that abort an exchange.
var ErrPersistence = errors.New("persistence failure")

// fallbackSender is recorded as the reply sender when the bot user is missing.
const fallbackSender = "bot"

// Broadcaster delivers an event to every live connection of a user.
type Broadcaster interface {
	Broadcast(userID string, event any) int
}

// Config tunes an Orchestrator.
type Config struct {
	// ContextLimit is the number of prior messages handed to the engine.
	ContextLimit  int
	BotName       string
	FallbackReply string
}

// Request is one inbound chat message from an authenticated connection.
type Request struct {
	User *user.User
	// Origin is the connection the message arrived on.
	Origin fanout.Member
	// Registered reports whether Origin is a member of the user's fan-out group.
	Registered     bool
	ConversationID string
	Text           string
}

// Orchestrator wires the store, directory, engine and fan-out registry.
type Orchestrator struct {
	store  chat.Store
	users  user.Directory
	engine ai.Engine
	groups Broadcaster
	cfg    Config
}

// New builds an Orchestrator.
func New(store chat.Store, users user.Directory, engine ai.Engine, groups Broadcaster, cfg Config) *Orchestrator {
	if engine == nil {
		engine = ai.Unavailable{}
	}
	if cfg.FallbackReply == "" {
		cfg.FallbackReply = "Sorry, I couldn't process your request."
	}
	return &Orchestrator{
		store:  store,
		users:  users,
		engine: engine,
		groups: groups,
		cfg:    cfg,
	}
}

// Handle runs a full exchange. Only ErrPersistence-wrapped errors are
// returned; assistant failures degrade into the fallback reply.
func (o *Orchestrator) Handle(ctx context.Context, req Request) error {
	if req.User == nil {
		return errors.New("orchestrator: user is required")
	}
	userID := req.User.ID

	conv, err := o.conversation(ctx, userID, req.ConversationID, req.Text)
	if err != nil {
		return fmt.Errorf("%w: resolve conversation: %w", ErrPersistence, err)
	}

	inbound, err := o.store.AppendMessage(ctx, conv.ID, userID, chat.KindUser, req.Text)
	if err != nil {
		return fmt.Errorf("%w: save user message: %w", ErrPersistence, err)
	}

	reply := o.complete(ctx, userID, conv.ID, inbound)

	outbound, err := o.store.AppendMessage(ctx, conv.ID, o.botSender(ctx), chat.KindBot, reply)
	if err != nil {
		return fmt.Errorf("%w: save bot reply: %w", ErrPersistence, err)
	}

	if req.Registered && o.groups != nil {
		o.groups.Broadcast(userID, protocol.NewEvent(inbound))
		o.groups.Broadcast(userID, protocol.NewEvent(outbound))
		return nil
	}

	if req.Origin != nil {
		if err := req.Origin.Send(protocol.Response{Response: outbound.Content}); err != nil {
			log.Printf("[orchestrator] direct reply failed user=%s conn=%s: %v", userID, req.Origin.ID(), err)
		}
	}
	return nil
}

// History returns the most recent limit messages of the user's active
// conversation, oldest first. A user without one gets an empty slice.
func (o *Orchestrator) History(ctx context.Context, userID string, limit int) ([]chat.Message, error) {
	conv, err := o.store.ActiveConversation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active conversation: %w", err)
	}
	if conv == nil {
		return []chat.Message{}, nil
	}
	return o.store.RecentMessages(ctx, conv.ID, limit)
}

// conversation picks the hinted conversation when the user owns it, else the
// active one, else a new one titled after the message.
func (o *Orchestrator) conversation(ctx context.Context, userID, hint, text string) (chat.Conversation, error) {
	if hint = strings.TrimSpace(hint); hint != "" {
		conv, err := o.store.GetConversation(ctx, hint)
		switch {
		case err == nil && conv.UserID == userID:
			return *conv, nil
		case err != nil && !errors.Is(err, chat.ErrConversationNotFound):
			return chat.Conversation{}, err
		}
		log.Printf("[orchestrator] ignoring conversation hint %s for user=%s", hint, userID)
	}

	return o.store.OpenConversation(ctx, userID, chat.TitleFrom(text))
}

func (o *Orchestrator) complete(ctx context.Context, userID, convID string, inbound chat.Message) string {
	history, err := o.contextWindow(ctx, convID, inbound)
	if err != nil {
		log.Printf("[orchestrator] load context failed user=%s conversation=%s: %v", userID, convID, err)
		history = []ai.Turn{{Role: ai.RoleUser, Content: inbound.Content}}
	}

	reply, err := o.engine.Complete(ctx, history)
	if err != nil {
		log.Printf("[orchestrator] assistant failed user=%s conversation=%s: %v", userID, convID, err)
		return o.cfg.FallbackReply
	}
	if strings.TrimSpace(reply) == "" {
		log.Printf("[orchestrator] assistant returned empty reply user=%s conversation=%s", userID, convID)
		return o.cfg.FallbackReply
	}
	return reply
}

// contextWindow returns up to ContextLimit prior messages in chronological
// order followed by the inbound message.
func (o *Orchestrator) contextWindow(ctx context.Context, convID string, inbound chat.Message) ([]ai.Turn, error) {
	turns := make([]ai.Turn, 0, o.cfg.ContextLimit+1)

	if o.cfg.ContextLimit > 0 {
		recent, err := o.store.RecentMessages(ctx, convID, o.cfg.ContextLimit+1)
		if err != nil {
			return nil, err
		}

		prior := make([]chat.Message, 0, len(recent))
		for _, msg := range recent {
			if msg.ID != inbound.ID {
				prior = append(prior, msg)
			}
		}
		if len(prior) > o.cfg.ContextLimit {
			prior = prior[len(prior)-o.cfg.ContextLimit:]
		}

		for _, msg := range prior {
			turns = append(turns, ai.Turn{Role: roleOf(msg.Kind), Content: msg.Content})
		}
	}

	return append(turns, ai.Turn{Role: ai.RoleUser, Content: inbound.Content}), nil
}

func roleOf(kind chat.Kind) ai.Role {
	if kind == chat.KindBot {
		return ai.RoleAssistant
	}
	return ai.RoleUser
}

func (o *Orchestrator) botSender(ctx context.Context) string {
	if o.users == nil || o.cfg.BotName == "" {
		return fallbackSender
	}
	bot, err := o.users.FindByUsername(ctx, o.cfg.BotName)
	if err != nil || bot == nil {
		log.Printf("[orchestrator] bot user %q unavailable, saving reply as %q: %v", o.cfg.BotName, fallbackSender, err)
		return fallbackSender
	}
	return bot.ID
}
