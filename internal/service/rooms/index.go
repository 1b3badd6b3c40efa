// Package rooms maintains the many-to-many relation between conversations
// and member identities.
package rooms

import (
	"sort"
	"sync"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

// Index maps conversation ids to their member sets. Operations are total
// functions: joins are idempotent, leaving a room you are not in is a no-op,
// and empty member sets are pruned.
type Index struct {
	mu    sync.RWMutex
	rooms map[string]map[string]chat.Identity
}

// New creates an empty index.
func New() *Index {
	return &Index{rooms: make(map[string]map[string]chat.Identity)}
}

// Join adds the identity to the conversation's member set.
func (i *Index) Join(conversationID string, identity chat.Identity) {
	i.mu.Lock()
	defer i.mu.Unlock()

	members, ok := i.rooms[conversationID]
	if !ok {
		members = make(map[string]chat.Identity)
		i.rooms[conversationID] = members
	}
	members[identity.UserID] = identity
}

// Leave removes the identity from the conversation. Returns whether the
// identity was actually a member.
func (i *Index) Leave(conversationID, userID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	members, ok := i.rooms[conversationID]
	if !ok {
		return false
	}
	if _, member := members[userID]; !member {
		return false
	}

	delete(members, userID)
	if len(members) == 0 {
		delete(i.rooms, conversationID)
	}
	return true
}

// IsMember reports whether the identity belongs to the conversation.
func (i *Index) IsMember(conversationID, userID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()

	members, ok := i.rooms[conversationID]
	if !ok {
		return false
	}
	_, member := members[userID]
	return member
}

// MembersOf returns the conversation's members sorted by user id. Never nil.
func (i *Index) MembersOf(conversationID string) []chat.Identity {
	i.mu.RLock()
	defer i.mu.RUnlock()

	members := i.rooms[conversationID]
	result := make([]chat.Identity, 0, len(members))
	for _, identity := range members {
		result = append(result, identity)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].UserID < result[b].UserID })
	return result
}

// RemoveEverywhere removes the identity from every conversation it belongs
// to, returning the affected conversation ids sorted for determinism. Used
// on disconnect so membership never outlives the session.
func (i *Index) RemoveEverywhere(userID string) []string {
	i.mu.Lock()
	defer i.mu.Unlock()

	var affected []string
	for conversationID, members := range i.rooms {
		if _, member := members[userID]; !member {
			continue
		}
		delete(members, userID)
		if len(members) == 0 {
			delete(i.rooms, conversationID)
		}
		affected = append(affected, conversationID)
	}
	sort.Strings(affected)
	return affected
}
