// Package fanout tracks the live connections of every user so an event can
// be delivered to all of a user's open tabs and devices.
package fanout

import (
	"log"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// Member is a live connection that can receive events. The registry holds
// members by handle only; it never closes them.
type Member interface {
	ID() string
	Send(v any) error
}

// Registry maps user ids to their live members. Users are spread over a
// fixed set of shards so unrelated users never contend on one lock.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu     sync.Mutex
	groups map[string]map[string]Member
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].groups = make(map[string]map[string]Member)
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	return &r.shards[xxhash.Sum64String(userID)%shardCount]
}

// Add registers m under userID. It reports false when m was already a member.
func (r *Registry) Add(userID string, m Member) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[userID]
	if !ok {
		group = make(map[string]Member)
		s.groups[userID] = group
	}
	if _, exists := group[m.ID()]; exists {
		return false
	}
	group[m.ID()] = m
	return true
}

// Remove deregisters m. Once Remove returns, no Broadcast that starts later
// will target m. It reports false when m was not a member.
func (r *Registry) Remove(userID string, m Member) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[userID]
	if !ok {
		return false
	}
	if _, exists := group[m.ID()]; !exists {
		return false
	}
	delete(group, m.ID())
	if len(group) == 0 {
		delete(s.groups, userID)
	}
	return true
}

// Broadcast sends event to every member registered for userID and returns
// how many sends succeeded. A failing member never stops delivery to its
// siblings; failures are logged and swallowed.
func (r *Registry) Broadcast(userID string, event any) int {
	members := r.Members(userID)

	delivered := 0
	for _, m := range members {
		if err := m.Send(event); err != nil {
			log.Printf("[fanout] send to conn=%s user=%s failed: %v", m.ID(), userID, err)
			continue
		}
		delivered++
	}
	return delivered
}

// Members returns a snapshot of the members registered for userID.
func (r *Registry) Members(userID string) []Member {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	group := s.groups[userID]
	members := make([]Member, 0, len(group))
	for _, m := range group {
		members = append(members, m)
	}
	return members
}

// Count returns the number of live members for userID.
func (r *Registry) Count(userID string) int {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups[userID])
}
