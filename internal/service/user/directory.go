package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/chat-gateway/backend/internal/model/user"
)

// MemoryDirectory implements user.Directory with an in-memory index, suitable
// for development and tests.
type MemoryDirectory struct {
	mu         sync.RWMutex
	byID       map[string]user.User
	byUsername map[string]string
}

var _ user.Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory returns a directory preloaded with the supplied users.
func NewMemoryDirectory(items ...user.User) *MemoryDirectory {
	d := &MemoryDirectory{
		byID:       make(map[string]user.User),
		byUsername: make(map[string]string),
	}
	for _, item := range items {
		d.Put(item)
	}
	return d
}

// Put inserts or replaces a user. Missing ids are generated.
func (d *MemoryDirectory) Put(u user.User) user.User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = user.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.byID[u.ID]; ok {
		delete(d.byUsername, strings.ToLower(prev.Username))
	}
	d.byID[u.ID] = u
	d.byUsername[strings.ToLower(u.Username)] = u.ID
	return u
}

// FindByUsername looks a user up case-insensitively.
func (d *MemoryDirectory) FindByUsername(_ context.Context, username string) (*user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, nil
	}
	u := d.byID[id]
	return &u, nil
}

// FindByID looks a user up by identifier.
func (d *MemoryDirectory) FindByID(_ context.Context, id string) (*user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Seed returns the bot identity plus one active account per username.
func Seed(botName string, usernames []string) []user.User {
	items := []user.User{{ID: botName, Username: botName, Role: user.RoleBot, IsActive: true}}
	for _, name := range usernames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		items = append(items, user.User{ID: name, Username: name, Role: user.RoleUser, IsActive: true})
	}
	return items
}
