package user

import (
	"context"
	"time"
)

// Role distinguishes human accounts from the assistant identity.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// User is the identity a credential token resolves to.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Directory looks users up for token resolution. Both methods return
// (nil, nil) when no user matches; errors are reserved for lookup failures.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}
