package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
)

const userColumns = `id, username, role, is_active, created_at`

// Directory is a user.Directory backed by the users table.
type Directory struct {
	pool *pgxpool.Pool
}

var _ user.Directory = (*Directory)(nil)

// NewDirectory wraps an open pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = user.Role(role)
	return &u, nil
}

// FindByUsername matches usernames case-insensitively.
func (d *Directory) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(username) = lower($1)`, strings.TrimSpace(username)))
	if err != nil {
		return nil, fmt.Errorf("select user by username: %w", err)
	}
	return u, nil
}

// FindByID looks a user up by primary key.
func (d *Directory) FindByID(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("select user by id: %w", err)
	}
	return u, nil
}

// Ensure inserts u unless a user with the same username exists, and returns
// the stored row. It is used to provision the bot identity at startup.
func (d *Directory) Ensure(ctx context.Context, u user.User) (*user.User, error) {
	if strings.TrimSpace(u.Username) == "" {
		return nil, errors.New("username is required")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = user.RoleUser
	}

	if _, err := d.pool.Exec(ctx, `
		INSERT INTO users (id, username, role, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`, u.ID, u.Username, string(u.Role), u.IsActive); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return d.FindByUsername(ctx, u.Username)
}
