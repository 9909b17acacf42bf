package chat

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chat-gateway/backend/internal/middleware"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/pkg/utils"
)

// Handler 会话查询接口的HTTP处理器
type Handler struct {
	store chat.Store
}

// New 创建聊天处理器
func New(store chat.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册聊天相关的路由。调用方负责挂载 middleware.RequireUser。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Get("/conversations", h.handleListConversations)
	r.Get("/conversations/{conversationID}/messages", h.handleListMessages)
}

// handleMe 返回当前用户
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

// handleListConversations 列出当前用户的会话，最新的在前
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	conversations, err := h.store.ListConversations(r.Context(), u.ID)
	if err != nil {
		log.Printf("[chat] list conversations failed user=%s: %v", u.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// handleListMessages 列出会话消息，按时间正序
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	conv, err := h.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			utils.RespondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		log.Printf("[chat] get conversation failed user=%s conversation=%s: %v", u.ID, conversationID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	// 不泄露他人会话是否存在
	if conv.UserID != u.ID {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		log.Printf("[chat] list messages failed user=%s conversation=%s: %v", u.ID, conv.ID, err)
		utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}
