// Package typing aggregates per-conversation typing indicators with expiry.
package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

// DefaultTTL is how long a typing entry stays valid without a refresh.
const DefaultTTL = 10 * time.Second

// Entry is one user's typing state in a conversation.
type Entry struct {
	Identity  chat.Identity `json:"identity"`
	StartedAt time.Time     `json:"startedAt"`
}

// Aggregator tracks who is typing where. Staleness is enforced both at read
// time (Snapshot filters) and by the periodic Sweep, so a missed sweep never
// leaks stale indicators to clients.
type Aggregator struct {
	mu    sync.Mutex
	rooms map[string]map[string]Entry
	ttl   time.Duration
	now   func() time.Time
}

// New creates an aggregator with the given staleness threshold.
func New(ttl time.Duration) *Aggregator {
	return NewWithClock(ttl, time.Now)
}

// NewWithClock injects the clock for deterministic tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Aggregator{
		rooms: make(map[string]map[string]Entry),
		ttl:   ttl,
		now:   now,
	}
}

// SetTyping upserts the typing entry, refreshing its start time.
func (a *Aggregator) SetTyping(conversationID string, identity chat.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, ok := a.rooms[conversationID]
	if !ok {
		entries = make(map[string]Entry)
		a.rooms[conversationID] = entries
	}
	entries[identity.UserID] = Entry{Identity: identity, StartedAt: a.now().UTC()}
}

// ClearTyping removes the entry. Returns whether anything changed.
func (a *Aggregator) ClearTyping(conversationID, userID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, ok := a.rooms[conversationID]
	if !ok {
		return false
	}
	if _, present := entries[userID]; !present {
		return false
	}

	delete(entries, userID)
	if len(entries) == 0 {
		delete(a.rooms, conversationID)
	}
	return true
}

// ClearAll removes the user's typing state from every conversation and
// returns the affected conversation ids sorted. Used on disconnect.
func (a *Aggregator) ClearAll(userID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var affected []string
	for conversationID, entries := range a.rooms {
		if _, present := entries[userID]; !present {
			continue
		}
		delete(entries, userID)
		if len(entries) == 0 {
			delete(a.rooms, conversationID)
		}
		affected = append(affected, conversationID)
	}
	sort.Strings(affected)
	return affected
}

// Snapshot returns the conversation's live typing entries, filtered against
// the staleness threshold at read time and ordered by start time then user
// id so broadcasts are stable.
func (a *Aggregator) Snapshot(conversationID string) []Entry {
	now := a.now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	entries := a.rooms[conversationID]
	result := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if now.Sub(entry.StartedAt) <= a.ttl {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(x, y int) bool {
		if !result[x].StartedAt.Equal(result[y].StartedAt) {
			return result[x].StartedAt.Before(result[y].StartedAt)
		}
		return result[x].Identity.UserID < result[y].Identity.UserID
	})
	return result
}

// Sweep physically deletes stale entries and returns the conversation ids
// whose visible state changed, so the caller knows which rooms need a fresh
// typing broadcast.
func (a *Aggregator) Sweep() []string {
	now := a.now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()

	var changed []string
	for conversationID, entries := range a.rooms {
		roomChanged := false
		for userID, entry := range entries {
			if now.Sub(entry.StartedAt) > a.ttl {
				delete(entries, userID)
				roomChanged = true
			}
		}
		if len(entries) == 0 {
			delete(a.rooms, conversationID)
		}
		if roomChanged {
			changed = append(changed, conversationID)
		}
	}
	sort.Strings(changed)
	return changed
}
