package chat

import "time"

// Session tracks one live transport connection. Presence is ephemeral: a
// session exists only between connect and disconnect and is never persisted.
type Session struct {
	ConnectionID   string    `json:"connectionId"`
	Identity       Identity  `json:"identity"`
	JoinedAt       time.Time `json:"joinedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}
