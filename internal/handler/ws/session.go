package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
	"github.com/zhouzirui/chat-gateway/backend/internal/service/auth"
)

const writeWait = 10 * time.Second

var errSessionClosed = errors.New("session closed")

type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticated
	stateClosed
)

// session is one websocket connection. It is owned by the goroutine running
// Handler.ServeWS; the fan-out registry only holds it as a fanout.Member.
type session struct {
	id        string
	conn      *websocket.Conn
	handshake auth.Handshake

	mu         sync.Mutex
	state      sessionState
	user       *user.User
	registered bool

	// writeMu serializes writes; gorilla/websocket allows one writer at a time.
	writeMu sync.Mutex
	closed  bool
}

func newSession(conn *websocket.Conn, hs auth.Handshake) *session {
	return &session{
		id:        uuid.NewString(),
		conn:      conn,
		handshake: hs,
	}
}

func (s *session) ID() string { return s.id }

// Send writes v as a JSON text frame. It fails once the session is closed.
func (s *session) Send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return errSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return errSessionClosed
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// current returns the authenticated user, if any.
func (s *session) current() (*user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.state == stateAuthenticated
}

func (s *session) isRegistered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// authenticate moves an unauthenticated session to authenticated and joins
// it to the user's group. The first success wins; later calls report false.
func (s *session) authenticate(u *user.User, join func(userID string) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateUnauthenticated {
		return false
	}
	s.state = stateAuthenticated
	s.user = u
	s.registered = join(u.ID)
	return true
}

// shutdown marks the session closed and leaves the user's group before the
// connection is released.
func (s *session) shutdown(leave func(userID string)) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	prev, u, registered := s.state, s.user, s.registered
	s.state = stateClosed
	s.registered = false
	if prev == stateAuthenticated && registered {
		leave(u.ID)
	}
	s.mu.Unlock()

	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()

	if s.conn != nil {
		s.conn.Close()
	}
}
