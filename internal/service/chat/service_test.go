package chat_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	chat "github.com/zhouzirui/chat-gateway/backend/internal/service/chat"
)

func TestServiceGetConversation(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", "hello")
	require.NoError(t, err)

	got, err := svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.IsActive)
}

func TestServiceGetConversationNotFound(t *testing.T) {
	svc := chat.NewService()

	_, err := svc.GetConversation(context.Background(), "missing")
	require.ErrorIs(t, err, model.ErrConversationNotFound)
}

func TestServiceCreateConversationRetiresPreviousActive(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	first, err := svc.CreateConversation(ctx, "u1", "first")
	require.NoError(t, err)
	second, err := svc.CreateConversation(ctx, "u1", "second")
	require.NoError(t, err)
	other, err := svc.CreateConversation(ctx, "u2", "other")
	require.NoError(t, err)

	active, err := svc.ActiveConversation(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	old, err := svc.GetConversation(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	otherActive, err := svc.ActiveConversation(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, other.ID, otherActive.ID)

	list, err := svc.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestServiceOpenConversationReusesActive(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	first, err := svc.OpenConversation(ctx, "u1", "first")
	require.NoError(t, err)
	assert.Equal(t, "first", first.Title)
	assert.True(t, first.IsActive)

	again, err := svc.OpenConversation(ctx, "u1", "ignored")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "first", again.Title)

	_, err = svc.OpenConversation(ctx, "", "x")
	require.ErrorIs(t, err, chat.ErrUserRequired)
}

func TestServiceOpenConversationConcurrent(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	const callers = 16
	ids := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := svc.OpenConversation(ctx, "u1", "race")
			if err == nil {
				ids <- conv.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1)

	list, err := svc.ListConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestServiceActiveConversationNone(t *testing.T) {
	svc := chat.NewService()

	active, err := svc.ActiveConversation(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestServiceRecentMessagesTrailingWindow(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)

	for _, content := range []string{"a", "b", "c", "d"} {
		_, err := svc.AppendMessage(ctx, conv.ID, "u1", model.KindUser, content)
		require.NoError(t, err)
	}

	recent, err := svc.RecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "d", recent[1].Content)
	assert.True(t, recent[0].CreatedAt.Before(recent[1].CreatedAt))

	all, err := svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestServiceAppendMessageBumpsUpdatedAt(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "u1", "t")
	require.NoError(t, err)

	msg, err := svc.AppendMessage(ctx, conv.ID, "bot", model.KindBot, "reply")
	require.NoError(t, err)

	got, err := svc.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.CreatedAt, got.UpdatedAt)
}

func TestServiceAppendMessageUnknownConversation(t *testing.T) {
	svc := chat.NewService()

	_, err := svc.AppendMessage(context.Background(), "missing", "u1", model.KindUser, "hi")
	require.ErrorIs(t, err, model.ErrConversationNotFound)
}
