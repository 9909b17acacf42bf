// Package config loads the gateway configuration from the environment via Viper.
package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// AI providers.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Chat     ChatConfig
	Database DatabaseConfig
	AI       AIConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// AuthConfig describes how credential tokens are verified.
type AuthConfig struct {
	Algorithm string
	Secret    string
	PublicKey string
}

// ChatConfig tunes the message exchange.
type ChatConfig struct {
	// HistoryLimit bounds the replay sent to a connection authenticated at handshake.
	HistoryLimit int
	// ContextLimit bounds the prior messages handed to the assistant.
	ContextLimit  int
	BotName       string
	FallbackReply string
	SystemPrompt  string
	// DevUsers seeds the in-memory directory when no database is configured.
	DevUsers []string
}

// DatabaseConfig 描述数据库连接。为空时使用内存存储。
type DatabaseConfig struct {
	URL string
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	v := newViper()

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig(v)
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Auth:     auth,
		Chat:     chat,
		Database: DatabaseConfig{URL: strings.TrimSpace(v.GetString("DATABASE_URL"))},
		AI:       ai,
	}, nil
}

// LoadDatabase 只读取数据库配置，供迁移工具使用。
func LoadDatabase() DatabaseConfig {
	v := newViper()
	return DatabaseConfig{URL: strings.TrimSpace(v.GetString("DATABASE_URL"))}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("CHAT_HISTORY_LIMIT", 50)
	v.SetDefault("CHAT_CONTEXT_LIMIT", 10)
	v.SetDefault("AI_BOT_NAME", "assistant")
	v.SetDefault("AI_FALLBACK_REPLY", "Sorry, I couldn't process your request.")
	v.SetDefault("AI_SYSTEM_CONTENT", "You are a helpful assistant.")
	v.SetDefault("AI_PROVIDER", ProviderArk)
	v.SetDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ARK_REGION", "cn-beijing")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_TIMEOUT", "30s")
	return v
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := strings.TrimSpace(v.GetString("PORT"))
	origins := splitList(v.GetString("ALLOWED_ORIGINS"))

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if port == "" || strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

func loadAuthConfig(v *viper.Viper) (AuthConfig, error) {
	cfg := AuthConfig{
		Algorithm: strings.TrimSpace(v.GetString("JWT_ALGORITHM")),
		Secret:    v.GetString("JWT_SECRET"),
		PublicKey: v.GetString("JWT_PUBLIC_KEY"),
	}

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil {
		return AuthConfig{}, fmt.Errorf("invalid JWT_ALGORITHM value %q", cfg.Algorithm)
	}
	if _, hmac := method.(*jwt.SigningMethodHMAC); hmac {
		if cfg.Secret == "" {
			return AuthConfig{}, fmt.Errorf("JWT_SECRET is required for %s", cfg.Algorithm)
		}
	} else if strings.TrimSpace(cfg.PublicKey) == "" {
		return AuthConfig{}, fmt.Errorf("JWT_PUBLIC_KEY is required for %s", cfg.Algorithm)
	}
	return cfg, nil
}

func loadChatConfig(v *viper.Viper) (ChatConfig, error) {
	history, err := parseIntSetting(v, "CHAT_HISTORY_LIMIT")
	if err != nil {
		return ChatConfig{}, err
	}
	contextLimit, err := parseIntSetting(v, "CHAT_CONTEXT_LIMIT")
	if err != nil {
		return ChatConfig{}, err
	}
	if history < 0 || contextLimit < 0 {
		return ChatConfig{}, fmt.Errorf("CHAT_HISTORY_LIMIT and CHAT_CONTEXT_LIMIT must not be negative")
	}

	return ChatConfig{
		HistoryLimit:  history,
		ContextLimit:  contextLimit,
		BotName:       strings.TrimSpace(v.GetString("AI_BOT_NAME")),
		FallbackReply: v.GetString("AI_FALLBACK_REPLY"),
		SystemPrompt:  v.GetString("AI_SYSTEM_CONTENT"),
		DevUsers:      splitList(v.GetString("DEV_USERS")),
	}, nil
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	temperature, err := parseOptionalFloat(v, "AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloat(v, "AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalInt(v, "AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := time.ParseDuration(strings.TrimSpace(v.GetString("AI_TIMEOUT")))
	if err != nil {
		return AIConfig{}, fmt.Errorf("invalid AI_TIMEOUT value %q: %w", v.GetString("AI_TIMEOUT"), err)
	}

	cfg := AIConfig{
		Provider:    strings.ToLower(strings.TrimSpace(v.GetString("AI_PROVIDER"))),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}

	switch cfg.Provider {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(v.GetString("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(v.GetString("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(v.GetString("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(v.GetString("ARK_MODEL"))
		cfg.BaseURL = strings.TrimSpace(v.GetString("ARK_BASE_URL"))
		cfg.Region = strings.TrimSpace(v.GetString("ARK_REGION"))
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(v.GetString("AI_API_KEY"))
		cfg.Model = strings.TrimSpace(v.GetString("AI_MODEL"))
		cfg.BaseURL = strings.TrimSpace(v.GetString("AI_BASE_URL"))
	case "none":
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", cfg.Provider)
	}

	return cfg, nil
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderOpenAI:
		return c.Model != "" && c.APIKey != ""
	default:
		return false
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}
	if c.Timeout > 0 {
		timeout := c.Timeout
		cfg.Timeout = &timeout
	}

	return ark.NewChatModel(ctx, cfg)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntSetting(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
