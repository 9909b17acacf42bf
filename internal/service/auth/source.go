package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	jwtScheme         = "JWT "
	bearerScheme      = "Bearer "
	subprotocolPrefix = "auth.token."
)

// cookieNames are checked in this order.
var cookieNames = []string{"token", "auth_token", "jwt"}

// Handshake is the transport metadata captured when a connection is accepted.
type Handshake struct {
	Query        url.Values
	Header       http.Header
	Cookies      []*http.Cookie
	Subprotocols []string
}

// HandshakeFromRequest captures the carriers of an upgrade request.
func HandshakeFromRequest(r *http.Request) Handshake {
	return Handshake{
		Query:        r.URL.Query(),
		Header:       r.Header.Clone(),
		Cookies:      r.Cookies(),
		Subprotocols: websocket.Subprotocols(r),
	}
}

// Extract returns the candidate credential for a frame: the in-band payload
// token wins, then the handshake carriers.
func Extract(payloadToken *string, hs Handshake) (string, bool) {
	if payloadToken != nil {
		if tok := strings.TrimSpace(*payloadToken); tok != "" {
			return tok, true
		}
	}
	return hs.Token()
}

// Token returns the first credential found in the handshake carriers, in
// order: query token, query Authorization, Authorization header, cookies,
// then the auth.token.<jwt> subprotocol. Both Authorization carriers need the
// "JWT " scheme; any other value falls through to the next carrier.
func (h Handshake) Token() (string, bool) {
	if tok := strings.TrimSpace(h.Query.Get("token")); tok != "" {
		return tok, true
	}

	if tok, ok := stripScheme(h.Query.Get("Authorization"), jwtScheme); ok {
		return tok, true
	}

	if tok, ok := stripScheme(h.Header.Get("Authorization"), jwtScheme); ok {
		return tok, true
	}

	for _, name := range cookieNames {
		for _, c := range h.Cookies {
			if c.Name == name && strings.TrimSpace(c.Value) != "" {
				return strings.TrimSpace(c.Value), true
			}
		}
	}

	if sp := h.Subprotocol(); sp != "" {
		return strings.TrimPrefix(sp, subprotocolPrefix), true
	}
	return "", false
}

// Subprotocol returns the auth.token.<jwt> entry offered by the client, if
// any. Browsers require the server to echo it back on upgrade.
func (h Handshake) Subprotocol() string {
	for _, sp := range h.Subprotocols {
		if strings.HasPrefix(sp, subprotocolPrefix) && len(sp) > len(subprotocolPrefix) {
			return sp
		}
	}
	return ""
}

// FromAuthorizationHeader extracts a token from a "JWT <token>" or
// "Bearer <token>" header value, as used by the REST endpoints.
func FromAuthorizationHeader(value string) (string, bool) {
	if tok, ok := stripScheme(value, jwtScheme); ok {
		return tok, true
	}
	return stripScheme(value, bearerScheme)
}

func stripScheme(value, scheme string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len(scheme) || !strings.EqualFold(value[:len(scheme)], scheme) {
		return "", false
	}
	tok := strings.TrimSpace(value[len(scheme):])
	return tok, tok != ""
}
