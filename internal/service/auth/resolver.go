package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
)

// Claims is the payload carried by credential tokens. Tokens issued by the
// credential service identify the user by username; user_id and sub are
// accepted as alternatives.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Config selects how tokens are verified.
type Config struct {
	// Algorithm is the only accepted signing algorithm (e.g. HS256, RS256, ES256).
	Algorithm string
	// Secret is the shared key for HS* algorithms.
	Secret string
	// PublicKey is inline PEM or a path to a PEM file for RS*, PS*, ES* and EdDSA.
	PublicKey string
}

// Resolver verifies credential tokens and maps them to directory users. It
// keeps no state between calls: expiry is evaluated on every Resolve.
type Resolver struct {
	users     user.Directory
	algorithm string
	key       any
	now       func() time.Time
}

// NewResolver builds a Resolver for the configured algorithm and key.
func NewResolver(cfg Config, users user.Directory) (*Resolver, error) {
	if users == nil {
		return nil, errors.New("auth: user directory is required")
	}

	alg := strings.TrimSpace(cfg.Algorithm)
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}

	key, err := verificationKey(alg, cfg)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		users:     users,
		algorithm: alg,
		key:       key,
		now:       time.Now,
	}, nil
}

func verificationKey(alg string, cfg Config) (any, error) {
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return nil, fmt.Errorf("auth: unsupported algorithm %q", alg)
	}

	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("auth: %s requires a secret: %w", alg, ErrInvalidKey)
		}
		return []byte(cfg.Secret), nil
	}

	pemBytes, err := loadPEM(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("auth: load public key: %w", err)
	}

	switch method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		return jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	case *jwt.SigningMethodECDSA:
		return jwt.ParseECPublicKeyFromPEM(pemBytes)
	case *jwt.SigningMethodEd25519:
		return jwt.ParseEdPublicKeyFromPEM(pemBytes)
	default:
		return nil, fmt.Errorf("auth: unsupported algorithm %q", alg)
	}
}

// Resolve verifies the token signature and expiry, then looks the user up.
// Failures are ErrTokenExpired, ErrTokenInvalid, ErrUserInactive (also for
// bot users), or a wrapped directory error.
func (r *Resolver) Resolve(ctx context.Context, token string) (*user.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{r.algorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.key, nil
	})
	if err != nil {
		// Signature is checked before claims, so an expired error implies a
		// token we issued.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	u, err := r.lookup(ctx, claims)
	if err != nil {
		return nil, err
	}
	// The assistant identity only authors replies; it never holds a session.
	if u == nil || !u.IsActive || u.Role == user.RoleBot {
		return nil, ErrUserInactive
	}
	return u, nil
}

func (r *Resolver) lookup(ctx context.Context, claims *Claims) (*user.User, error) {
	if claims.Username != "" {
		u, err := r.users.FindByUsername(ctx, claims.Username)
		if err != nil {
			return nil, fmt.Errorf("find user by username: %w", err)
		}
		return u, nil
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return nil, ErrTokenInvalid
	}

	u, err := r.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}
