package gateway

import (
	"time"

	"github.com/lumachat/luma-gateway/internal/model/chat"
	"github.com/lumachat/luma-gateway/internal/service/typing"
)

// Inbound event verbs.
const (
	EventHeartbeat  = "heartbeat"
	EventJoin       = "joinConversation"
	EventLeave      = "leaveConversation"
	EventSend       = "sendMessage"
	EventTyping     = "typing"
	EventStopTyping = "stopTyping"
)

// Outbound event types.
const (
	EventConnected    = "connected"
	EventHeartbeatAck = "heartbeatAck"
	EventJoined       = "joinedConversation"
	EventUserJoined   = "userJoined"
	EventUserLeft     = "userLeft"
	EventOnlineUsers  = "onlineUsers"
	EventNewMessage   = "newMessage"
	EventTypingUpdate = "typingUpdate"
	EventError        = "error"
)

// Inbound is one client event: a verb plus its payload fields.
type Inbound struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Content        string `json:"content,omitempty"`
}

// Outbound is one server event delivered to a client.
type Outbound struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func newOutbound(eventType string, data interface{}) Outbound {
	return Outbound{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ConnectedData confirms the authenticated identity to a fresh connection.
type ConnectedData struct {
	Identity chat.Identity `json:"identity"`
}

// HeartbeatAckData echoes the server time for a heartbeat.
type HeartbeatAckData struct {
	Timestamp time.Time `json:"timestamp"`
}

// JoinedData confirms a join to its sender.
type JoinedData struct {
	ConversationID string `json:"conversationId"`
}

// UserJoinedData announces a new member to the room.
type UserJoinedData struct {
	ConversationID string        `json:"conversationId"`
	Identity       chat.Identity `json:"identity"`
}

// UserLeftData announces a departed member to the room.
type UserLeftData struct {
	ConversationID string        `json:"conversationId"`
	Identity       chat.Identity `json:"identity"`
}

// OnlineUsersData carries the room's refreshed member list.
type OnlineUsersData struct {
	ConversationID string          `json:"conversationId"`
	Members        []chat.Identity `json:"members"`
	Count          int             `json:"count"`
}

// NewMessageData carries a relayed user or assistant message.
type NewMessageData struct {
	ConversationID string       `json:"conversationId"`
	Message        chat.Message `json:"message"`
}

// TypingUpdateData carries the recomputed typing snapshot for a room.
type TypingUpdateData struct {
	ConversationID string         `json:"conversationId"`
	TypingUsers    []typing.Entry `json:"typingUsers"`
}

// ErrorData is a per-event error reply. The connection survives.
type ErrorData struct {
	Message string `json:"message"`
}
