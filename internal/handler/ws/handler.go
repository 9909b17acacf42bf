// Package ws serves the authenticated chat websocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/chat"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/protocol"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/auth"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/fanout"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/orchestrator"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	maxFrameSize = 64 << 10

	defaultHistoryLimit = 50
)

// Resolver maps a credential token to a user.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*user.User, error)
}

// Exchanger runs chat exchanges and serves history replays.
type Exchanger interface {
	Handle(ctx context.Context, req orchestrator.Request) error
	History(ctx context.Context, userID string, limit int) ([]chat.Message, error)
}

// Groups tracks the live sessions of each user.
type Groups interface {
	Add(userID string, m fanout.Member) bool
	Remove(userID string, m fanout.Member) bool
}

// Options tunes a Handler.
type Options struct {
	// AllowedOrigins lists accepted Origin headers; "*" or empty accepts any.
	AllowedOrigins []string
	// HistoryLimit bounds the replay sent after handshake authentication.
	HistoryLimit int
}

// Handler upgrades requests to websocket sessions and drives them.
type Handler struct {
	resolver     Resolver
	exchange     Exchanger
	groups       Groups
	historyLimit int
	upgrader     websocket.Upgrader
}

// NewHandler 创建聊天 WebSocket 处理器。
func NewHandler(resolver Resolver, exchange Exchanger, groups Groups, opts Options) *Handler {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	return &Handler{
		resolver:     resolver,
		exchange:     exchange,
		groups:       groups,
		historyLimit: limit,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(opts.AllowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册 WebSocket 路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/chat", h.ServeWS)
}

// ServeWS accepts one connection and runs its read loop until the transport
// closes. Frames are handled one at a time.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	hs := auth.HandshakeFromRequest(r)

	var responseHeader http.Header
	if sp := hs.Subprotocol(); sp != "" {
		responseHeader = http.Header{"Sec-Websocket-Protocol": []string{sp}}
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	s := newSession(conn, hs)
	defer s.shutdown(func(userID string) { h.groups.Remove(userID, s) })

	log.Printf("[websocket] connection opened id=%s remote=%s", s.id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, s)

	h.send(s, protocol.Connected())
	h.authenticateHandshake(ctx, s)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error id=%s: %v", s.id, err)
			}
			break
		}

		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleFrame(ctx, s, data)
	}

	log.Printf("[websocket] connection closed id=%s", s.id)
}

// authenticateHandshake tries the handshake carriers before any frame is
// read. Failure is silent; the client can still authenticate in-band.
func (h *Handler) authenticateHandshake(ctx context.Context, s *session) {
	token, ok := s.handshake.Token()
	if !ok {
		return
	}

	u, err := h.resolver.Resolve(ctx, token)
	if err != nil {
		log.Printf("[websocket] handshake auth failed id=%s: %v", s.id, err)
		return
	}
	if !h.join(s, u) {
		return
	}

	messages, err := h.exchange.History(ctx, u.ID, h.historyLimit)
	if err != nil {
		log.Printf("[websocket] history replay failed id=%s user=%s: %v", s.id, u.ID, err)
		messages = nil
	}
	h.send(s, protocol.NewHistory(messages))
}

// handleFrame applies one inbound frame to the session state machine. No
// outcome closes the connection.
func (h *Handler) handleFrame(ctx context.Context, s *session, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[websocket] panic handling frame id=%s: %v", s.id, rec)
			h.send(s, protocol.InternalError())
		}
	}()

	var in protocol.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		h.send(s, protocol.InvalidJSON())
		return
	}

	u, ok := s.current()
	if !ok {
		token, found := auth.Extract(in.Token, s.handshake)
		if !found {
			h.send(s, protocol.NotAuthenticated())
			return
		}

		resolved, err := h.resolver.Resolve(ctx, token)
		if err != nil {
			if auth.IsAuthFailure(err) {
				log.Printf("[websocket] auth rejected id=%s: %v", s.id, err)
				h.send(s, protocol.AuthFailed(auth.Reason(err), auth.Code(err)))
				return
			}
			log.Printf("[websocket] auth lookup failed id=%s: %v", s.id, err)
			h.send(s, protocol.InternalError())
			return
		}

		h.join(s, resolved)
		h.send(s, protocol.Authenticated())
		if in.Message == nil {
			return
		}
		u = resolved
	}

	if in.Message == nil || strings.TrimSpace(*in.Message) == "" {
		return
	}

	err := h.exchange.Handle(ctx, orchestrator.Request{
		User:           u,
		Origin:         s,
		Registered:     s.isRegistered(),
		ConversationID: in.ConversationID,
		Text:           *in.Message,
	})
	if err != nil {
		log.Printf("[websocket] exchange failed id=%s user=%s: %v", s.id, u.ID, err)
		h.send(s, protocol.InternalError())
	}
}

func (h *Handler) join(s *session, u *user.User) bool {
	joined := s.authenticate(u, func(userID string) bool {
		return h.groups.Add(userID, s)
	})
	if joined {
		log.Printf("[websocket] authenticated id=%s user=%s", s.id, u.ID)
	}
	return joined
}

func (h *Handler) send(s *session, v any) {
	if err := s.Send(v); err != nil && !errors.Is(err, errSessionClosed) {
		log.Printf("[websocket] write failed id=%s: %v", s.id, err)
	}
}

// pingLoop 定期发送 ping 消息。
func (h *Handler) pingLoop(ctx context.Context, s *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
