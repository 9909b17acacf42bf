package auth

import (
	"errors"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/protocol"
)

var (
	// ErrNoToken means no carrier held a credential.
	ErrNoToken = errors.New("no token")
	// ErrTokenExpired is returned for a well-formed, correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed tokens, bad signatures, wrong algorithms and missing claims.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUserInactive is returned for both missing and deactivated users so
	// callers cannot tell the two apart.
	ErrUserInactive = errors.New("user inactive or not found")
)

// IsAuthFailure reports whether err is a credential problem the client can
// fix, as opposed to an infrastructure failure during resolution.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrUserInactive)
}

// Code maps a resolution failure to its client-facing code.
func Code(err error) string {
	if errors.Is(err, ErrTokenExpired) {
		return protocol.CodeTokenExpired
	}
	return protocol.CodeTokenError
}

// Reason maps a resolution failure to a short, stable client message.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "Token has expired"
	case errors.Is(err, ErrUserInactive):
		return "User inactive or not found"
	default:
		return "Invalid token"
	}
}
