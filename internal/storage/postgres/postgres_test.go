package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/storage/postgres"
	"github.com/zhouzirui/chat-gateway/backend/internal/storage/postgres/migrate"
)

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, migrate.Run(dsn, "up"))

	ctx := context.Background()
	pool, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE messages, conversations, users`)
	require.NoError(t, err)
	return pool
}

func TestOpenEmptyDSN(t *testing.T) {
	pool, err := postgres.Open(context.Background(), "")
	assert.Error(t, err)
	assert.Nil(t, pool)
}

func TestDirectory(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	dir := postgres.NewDirectory(pool)

	bot, err := dir.Ensure(ctx, user.User{Username: "assistant", Role: user.RoleBot, IsActive: true})
	require.NoError(t, err)
	require.NotNil(t, bot)
	assert.Equal(t, user.RoleBot, bot.Role)

	again, err := dir.Ensure(ctx, user.User{Username: "Assistant", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, bot.ID, again.ID)

	found, err := dir.FindByUsername(ctx, "ASSISTANT")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, bot.ID, found.ID)

	byID, err := dir.FindByID(ctx, bot.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)

	missing, err := dir.FindByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreConversationLifecycle(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := postgres.NewStore(pool)

	active, err := store.ActiveConversation(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, active)

	first, err := store.CreateConversation(ctx, "alice", "first")
	require.NoError(t, err)
	second, err := store.CreateConversation(ctx, "alice", "second")
	require.NoError(t, err)

	active, err = store.ActiveConversation(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	retired, err := store.GetConversation(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, retired.IsActive)

	_, err = store.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)

	list, err := store.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
}

func TestStoreOpenConversation(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := postgres.NewStore(pool)

	const callers = 8
	ids := make(chan string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := store.OpenConversation(ctx, "alice", "race")
			if assert.NoError(t, err) {
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

	created, err := store.CreateConversation(ctx, "alice", "fresh")
	require.NoError(t, err)
	opened, err := store.OpenConversation(ctx, "alice", "ignored")
	require.NoError(t, err)
	assert.Equal(t, created.ID, opened.ID)

	list, err := store.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStoreMessages(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := postgres.NewStore(pool)

	conv, err := store.CreateConversation(ctx, "alice", "chat")
	require.NoError(t, err)

	for i, content := range []string{"one", "two", "three", "four"} {
		kind := chat.KindUser
		if i%2 == 1 {
			kind = chat.KindBot
		}
		_, err := store.AppendMessage(ctx, conv.ID, "alice", kind, content)
		require.NoError(t, err)
	}

	recent, err := store.RecentMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Content)
	assert.Equal(t, "four", recent[1].Content)
	assert.Equal(t, chat.KindBot, recent[1].Kind)

	all, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	touched, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, touched.UpdatedAt.After(conv.UpdatedAt))

	_, err = store.AppendMessage(ctx, "missing", "alice", chat.KindUser, "lost")
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)
}
