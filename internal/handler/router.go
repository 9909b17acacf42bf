package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/chat-gateway/backend/internal/handler/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/chat-gateway/backend/internal/middleware"
	chatModel "github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/pkg/utils"
)

// Dependencies groups what the router needs from the services.
type Dependencies struct {
	Store          chatModel.Store
	Resolver       middlewarePkg.Resolver
	Chat           *ws.Handler
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// WebSocket 路由自行完成鉴权，不挂载 REST 的 RequireUser
	deps.Chat.RegisterRoutes(r)

	chatHandler := chat.New(deps.Store)
	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.RequireUser(deps.Resolver))
		chatHandler.RegisterRoutes(api)
	})

	return r
}
