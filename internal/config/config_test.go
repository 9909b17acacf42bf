package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("PORT", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AI_PROVIDER", "ark")
	t.Setenv("PORT", "8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "HS256", cfg.Auth.Algorithm)
	assert.Equal(t, 50, cfg.Chat.HistoryLimit)
	assert.Equal(t, 10, cfg.Chat.ContextLimit)
	assert.Equal(t, "assistant", cfg.Chat.BotName)
	assert.Equal(t, "Sorry, I couldn't process your request.", cfg.Chat.FallbackReply)
	assert.Equal(t, ProviderArk, cfg.AI.Provider)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Nil(t, cfg.AI.Temperature)
}

func TestLoadServerAddr(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AI_PROVIDER", "none")

	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretForHMAC(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("AI_PROVIDER", "none")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_ALGORITHM", "RS256")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_PUBLIC_KEY")
}

func TestLoadOpenAIProvider(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("AI_PROVIDER", "OpenAI")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("AI_BASE_URL", "http://localhost:1234/v1")
	t.Setenv("AI_TEMPERATURE", "0.7")
	t.Setenv("AI_MAX_TOKENS", "256")
	t.Setenv("DEV_USERS", "alice, bob,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.7, *cfg.AI.Temperature, 1e-9)
	require.NotNil(t, cfg.AI.MaxTokens)
	assert.Equal(t, 256, *cfg.AI.MaxTokens)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Chat.DevUsers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("AI_PROVIDER", "none")

	t.Setenv("AI_TOP_P", "high")
	_, err := Load()
	assert.ErrorContains(t, err, "AI_TOP_P")
	t.Setenv("AI_TOP_P", "")

	t.Setenv("CHAT_HISTORY_LIMIT", "-1")
	_, err = Load()
	assert.Error(t, err)
	t.Setenv("CHAT_HISTORY_LIMIT", "")

	t.Setenv("AI_PROVIDER", "mystery")
	_, err = Load()
	assert.ErrorContains(t, err, "AI_PROVIDER")
}

func TestAIConfigEnabled(t *testing.T) {
	assert.False(t, AIConfig{Provider: ProviderArk, Model: "m"}.Enabled())
	assert.True(t, AIConfig{Provider: ProviderArk, Model: "m", APIKey: "k"}.Enabled())
	assert.True(t, AIConfig{Provider: ProviderArk, Model: "m", AccessKey: "a", SecretKey: "s"}.Enabled())
	assert.False(t, AIConfig{Provider: ProviderOpenAI, Model: "m"}.Enabled())
	assert.False(t, AIConfig{Provider: "none", Model: "m", APIKey: "k"}.Enabled())
}
