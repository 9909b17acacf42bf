package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/chat-gateway/backend/internal/config"
	"github.com/zhouzirui/chat-gateway/backend/internal/handler"
	"github.com/zhouzirui/chat-gateway/backend/internal/handler/ws"
	chatModel "github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/ai"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/auth"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/fanout"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/orchestrator"
	userservice "github.com/zhouzirui/chat-gateway/backend/internal/service/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, users, closeStorage := openStorage(ctx, cfg)
	defer closeStorage()

	resolver, err := auth.NewResolver(auth.Config{
		Algorithm: cfg.Auth.Algorithm,
		Secret:    cfg.Auth.Secret,
		PublicKey: cfg.Auth.PublicKey,
	}, users)
	if err != nil {
		log.Fatalf("failed to initialize token resolver: %v", err)
	}

	// Initialize AI engine
	engine, err := ai.NewEngine(ctx, cfg.AI, cfg.Chat.SystemPrompt)
	if err != nil {
		log.Printf("warning: failed to initialize AI engine: %v", err)
		log.Println("continuing with fallback replies only")
		engine = ai.Unavailable{}
	} else if _, ok := engine.(ai.Unavailable); ok {
		log.Printf("AI provider %q 未配置凭证，所有回复将使用兜底文本", cfg.AI.Provider)
	} else {
		log.Printf("AI engine initialized provider=%s model=%s", cfg.AI.Provider, cfg.AI.Model)
	}

	registry := fanout.NewRegistry()
	exchange := orchestrator.New(store, users, engine, registry, orchestrator.Config{
		ContextLimit:  cfg.Chat.ContextLimit,
		BotName:       cfg.Chat.BotName,
		FallbackReply: cfg.Chat.FallbackReply,
	})

	chatSocket := ws.NewHandler(resolver, exchange, registry, ws.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HistoryLimit:   cfg.Chat.HistoryLimit,
	})

	router := handler.NewRouter(handler.Dependencies{
		Store:          store,
		Resolver:       resolver,
		Chat:           chatSocket,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

// openStorage returns Postgres-backed stores when DATABASE_URL is set and
// in-memory stores seeded with DEV_USERS otherwise.
func openStorage(ctx context.Context, cfg *config.Config) (chatModel.Store, user.Directory, func()) {
	if cfg.Database.URL == "" {
		log.Println("DATABASE_URL 未配置，使用内存存储")
		users := userservice.NewMemoryDirectory(userservice.Seed(cfg.Chat.BotName, cfg.Chat.DevUsers)...)
		return chat.NewService(), users, func() {}
	}

	pool, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	users := postgres.NewDirectory(pool)
	if cfg.Chat.BotName != "" {
		if _, err := users.Ensure(ctx, user.User{Username: cfg.Chat.BotName, Role: user.RoleBot, IsActive: true}); err != nil {
			log.Printf("warning: failed to provision bot user %q: %v", cfg.Chat.BotName, err)
		}
	}

	log.Println("[postgres] connected")
	return postgres.NewStore(pool), users, pool.Close
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat gateway listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
