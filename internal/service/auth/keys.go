package auth

import (
	"errors"
	"os"
	"strings"
)

// ErrInvalidKey is returned when verification key material is missing or unusable.
var ErrInvalidKey = errors.New("invalid key")

// loadPEM returns s when it is inline PEM, otherwise reads the file at path s.
func loadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}
