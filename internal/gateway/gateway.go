// Package gateway is the realtime relay orchestrator: it owns presence,
// room membership and typing state, relays chat messages to room members,
// and coordinates AI completions through the completion router.
package gateway

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/lumachat/luma-gateway/internal/model/chat"
	"github.com/lumachat/luma-gateway/internal/provider"
	"github.com/lumachat/luma-gateway/internal/service/completion"
	"github.com/lumachat/luma-gateway/internal/service/presence"
	"github.com/lumachat/luma-gateway/internal/service/rooms"
	"github.com/lumachat/luma-gateway/internal/service/typing"
)

// Sender delivers outbound events to one connection. Implementations must be
// safe for concurrent use; the websocket handler serializes writes with a
// mutex.
type Sender interface {
	Send(event Outbound) error
	Close() error
}

// MessageStore is the persistent conversation store collaborator.
type MessageStore interface {
	AppendMessage(ctx context.Context, message chat.Message) (chat.Message, error)
	LoadHistory(ctx context.Context, conversationID string) ([]chat.Message, error)
}

// Completer routes completion requests across providers. Satisfied by
// *completion.Router.
type Completer interface {
	Route(ctx context.Context, requestedModel string, messages []provider.Message, params provider.Params, enableFailover bool) completion.Result
}

// ModerationHook inspects a message before relay. A non-nil error rejects
// the message: the sender gets an error event and nothing is broadcast.
type ModerationHook func(ctx context.Context, conversationID string, sender chat.Identity, content string) error

// Config carries the gateway's tunables. Zero values fall back to defaults.
type Config struct {
	InactivityThreshold   time.Duration
	LivenessSweepInterval time.Duration
	TypingSweepInterval   time.Duration
	HistoryLimit          int
	Model                 string
	Temperature           *float64
	MaxTokens             *int
	EnableFailover        bool
}

func (c Config) withDefaults() Config {
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = 300 * time.Second
	}
	if c.LivenessSweepInterval <= 0 {
		c.LivenessSweepInterval = 30 * time.Second
	}
	if c.TypingSweepInterval <= 0 {
		c.TypingSweepInterval = typing.DefaultTTL
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	return c
}

// Gateway glues registry, membership, typing state, the message store and
// the completion router together. Locks are held only for map access, never
// across store or router calls.
type Gateway struct {
	cfg       Config
	registry  *presence.Registry
	rooms     *rooms.Index
	typing    *typing.Aggregator
	store     MessageStore
	completer Completer
	moderate  ModerationHook

	mu      sync.RWMutex
	senders map[string]Sender
}

// New wires the orchestrator.
func New(cfg Config, registry *presence.Registry, roomIndex *rooms.Index, typingAgg *typing.Aggregator, store MessageStore, completer Completer) *Gateway {
	return &Gateway{
		cfg:       cfg.withDefaults(),
		registry:  registry,
		rooms:     roomIndex,
		typing:    typingAgg,
		store:     store,
		completer: completer,
		senders:   make(map[string]Sender),
	}
}

// SetModerationHook installs the optional pre-relay filter. When configured
// it is always invoked, regardless of transport.
func (g *Gateway) SetModerationHook(hook ModerationHook) {
	g.moderate = hook
}

// Connect registers a freshly authenticated connection.
func (g *Gateway) Connect(connectionID string, identity chat.Identity, sender Sender) {
	g.mu.Lock()
	g.senders[connectionID] = sender
	g.mu.Unlock()

	g.registry.OnConnect(connectionID, identity)
	log.Printf("[gateway] connected conn=%s user=%s", connectionID, identity.UserID)

	g.sendTo(connectionID, newOutbound(EventConnected, ConnectedData{Identity: identity}))
}

// Disconnect tears down a connection and cascades cleanup: the identity is
// removed from every room and typing map it appears in, with the same
// broadcasts an explicit leave would produce. Safe to call more than once.
func (g *Gateway) Disconnect(connectionID string) {
	g.mu.Lock()
	delete(g.senders, connectionID)
	g.mu.Unlock()

	session, ok := g.registry.OnDisconnect(connectionID)
	if !ok {
		return
	}
	log.Printf("[gateway] disconnected conn=%s user=%s", connectionID, session.Identity.UserID)

	// Each cleanup step is idempotent and independent; a crash between them
	// only costs ephemeral state.
	for _, conversationID := range g.rooms.RemoveEverywhere(session.Identity.UserID) {
		g.broadcast(conversationID, newOutbound(EventUserLeft, UserLeftData{
			ConversationID: conversationID,
			Identity:       session.Identity,
		}))
		g.broadcastOnlineUsers(conversationID)
	}
	for _, conversationID := range g.typing.ClearAll(session.Identity.UserID) {
		g.broadcastTyping(conversationID)
	}
}

// Heartbeat records client liveness and acknowledges it.
func (g *Gateway) Heartbeat(connectionID string) {
	g.registry.Touch(connectionID)
	g.sendTo(connectionID, newOutbound(EventHeartbeatAck, HeartbeatAckData{Timestamp: time.Now().UTC()}))
}

// Touch records activity without an acknowledgement, e.g. for transport
// level pongs.
func (g *Gateway) Touch(connectionID string) {
	g.registry.Touch(connectionID)
}

// Join adds the connection's identity to a conversation and notifies the
// room.
func (g *Gateway) Join(connectionID, conversationID string) {
	session, ok := g.touchSession(connectionID)
	if !ok {
		return
	}
	if conversationID == "" {
		g.sendError(connectionID, "conversationId is required")
		return
	}

	g.rooms.Join(conversationID, session.Identity)
	log.Printf("[gateway] user=%s joined conversation=%s", session.Identity.UserID, conversationID)

	g.sendTo(connectionID, newOutbound(EventJoined, JoinedData{ConversationID: conversationID}))
	g.broadcastExcept(conversationID, session.Identity.UserID, newOutbound(EventUserJoined, UserJoinedData{
		ConversationID: conversationID,
		Identity:       session.Identity,
	}))
	g.broadcastOnlineUsers(conversationID)
}

// Leave removes the identity from a conversation.
func (g *Gateway) Leave(connectionID, conversationID string) {
	session, ok := g.touchSession(connectionID)
	if !ok {
		return
	}

	if !g.rooms.Leave(conversationID, session.Identity.UserID) {
		g.sendError(connectionID, "not a member of this conversation")
		return
	}

	if g.typing.ClearTyping(conversationID, session.Identity.UserID) {
		g.broadcastTyping(conversationID)
	}

	g.broadcast(conversationID, newOutbound(EventUserLeft, UserLeftData{
		ConversationID: conversationID,
		Identity:       session.Identity,
	}))
	g.broadcastOnlineUsers(conversationID)
}

// Typing marks the identity as typing and pushes the recomputed snapshot.
func (g *Gateway) Typing(connectionID, conversationID string) {
	session, ok := g.touchSession(connectionID)
	if !ok {
		return
	}
	if !g.rooms.IsMember(conversationID, session.Identity.UserID) {
		g.sendError(connectionID, "not a member of this conversation")
		return
	}

	g.typing.SetTyping(conversationID, session.Identity)
	g.broadcastTyping(conversationID)
}

// StopTyping clears the identity's typing state.
func (g *Gateway) StopTyping(connectionID, conversationID string) {
	session, ok := g.touchSession(connectionID)
	if !ok {
		return
	}
	if !g.rooms.IsMember(conversationID, session.Identity.UserID) {
		g.sendError(connectionID, "not a member of this conversation")
		return
	}

	if g.typing.ClearTyping(conversationID, session.Identity.UserID) {
		g.broadcastTyping(conversationID)
	}
}

// SendMessage relays a user message to the room synchronously, then kicks
// off the completion asynchronously. The user message broadcast always
// happens before the router call begins; the completion broadcast lands
// whenever the router resolves, against a fresh membership read.
func (g *Gateway) SendMessage(ctx context.Context, connectionID, conversationID, content string) {
	session, ok := g.touchSession(connectionID)
	if !ok {
		return
	}
	if conversationID == "" {
		g.sendError(connectionID, "conversationId is required")
		return
	}
	if strings.TrimSpace(content) == "" {
		g.sendError(connectionID, "message content must not be empty")
		return
	}
	if !g.rooms.IsMember(conversationID, session.Identity.UserID) {
		g.sendError(connectionID, "not a member of this conversation")
		return
	}

	if g.moderate != nil {
		if err := g.moderate(ctx, conversationID, session.Identity, content); err != nil {
			log.Printf("[gateway] message rejected by moderation: %v", err)
			g.sendError(connectionID, "message rejected: "+err.Error())
			return
		}
	}

	// Sending a message implies the user stopped typing.
	if g.typing.ClearTyping(conversationID, session.Identity.UserID) {
		g.broadcastTyping(conversationID)
	}

	saved, err := g.store.AppendMessage(ctx, chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		SenderID:       session.Identity.UserID,
		SenderName:     session.Identity.DisplayName,
		Content:        content,
	})
	if err != nil {
		log.Printf("[gateway] failed to store message: %v", err)
		g.sendError(connectionID, "failed to store message")
		return
	}

	g.broadcast(conversationID, newOutbound(EventNewMessage, NewMessageData{
		ConversationID: conversationID,
		Message:        saved,
	}))

	// The router call blocks on network I/O, so it runs detached from both
	// the locks and the originating request context. Liveness eviction is
	// the cancellation mechanism for abandoned connections.
	go g.generateReply(context.Background(), conversationID)
}

// generateReply loads history, routes the completion, persists the result
// and broadcasts it. Router failures still produce a broadcast with
// degraded text; silence is the one outcome this path never allows.
func (g *Gateway) generateReply(ctx context.Context, conversationID string) {
	history, err := g.store.LoadHistory(ctx, conversationID)
	if err != nil {
		log.Printf("[gateway] failed to load history for %s: %v", conversationID, err)
		history = nil
	}
	if len(history) > g.cfg.HistoryLimit {
		history = history[len(history)-g.cfg.HistoryLimit:]
	}

	messages := make([]provider.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleUser, chat.RoleAssistant, chat.RoleSystem:
			messages = append(messages, provider.Message{Role: msg.Role, Content: msg.Content})
		}
	}

	result := g.completer.Route(ctx, g.cfg.Model, messages, provider.Params{
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}, g.cfg.EnableFailover)
	if result.Err != nil {
		log.Printf("[gateway] completion degraded for %s: %v", conversationID, result.Err)
	}

	saved, err := g.store.AppendMessage(ctx, chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleAssistant,
		Content:        result.Text,
		Provider:       result.Provider,
		Model:          result.Model,
	})
	if err != nil {
		log.Printf("[gateway] failed to store completion: %v", err)
		return
	}

	g.broadcast(conversationID, newOutbound(EventNewMessage, NewMessageData{
		ConversationID: conversationID,
		Message:        saved,
	}))
}

// touchSession looks up the session and records activity. Events from
// unknown connections are dropped; the transport is already gone.
func (g *Gateway) touchSession(connectionID string) (chat.Session, bool) {
	session, ok := g.registry.Get(connectionID)
	if !ok {
		return chat.Session{}, false
	}
	g.registry.Touch(connectionID)
	return session, true
}

// broadcast delivers an event to every live connection whose identity is a
// member of the conversation at this instant.
func (g *Gateway) broadcast(conversationID string, event Outbound) {
	g.broadcastExcept(conversationID, "", event)
}

func (g *Gateway) broadcastExcept(conversationID, skipUserID string, event Outbound) {
	members := g.rooms.MembersOf(conversationID)
	if len(members) == 0 {
		return
	}
	target := make(map[string]bool, len(members))
	for _, identity := range members {
		target[identity.UserID] = true
	}

	// Copy senders under the lock, deliver outside it.
	g.mu.RLock()
	recipients := make(map[string]Sender, len(g.senders))
	for connectionID, sender := range g.senders {
		recipients[connectionID] = sender
	}
	g.mu.RUnlock()

	for connectionID, sender := range recipients {
		session, ok := g.registry.Get(connectionID)
		if !ok {
			continue
		}
		userID := session.Identity.UserID
		if !target[userID] || userID == skipUserID {
			continue
		}
		if err := sender.Send(event); err != nil {
			log.Printf("[gateway] send to conn=%s failed: %v", connectionID, err)
		}
	}
}

func (g *Gateway) broadcastOnlineUsers(conversationID string) {
	members := g.rooms.MembersOf(conversationID)
	g.broadcast(conversationID, newOutbound(EventOnlineUsers, OnlineUsersData{
		ConversationID: conversationID,
		Members:        members,
		Count:          len(members),
	}))
}

func (g *Gateway) broadcastTyping(conversationID string) {
	g.broadcast(conversationID, newOutbound(EventTypingUpdate, TypingUpdateData{
		ConversationID: conversationID,
		TypingUsers:    g.typing.Snapshot(conversationID),
	}))
}

func (g *Gateway) sendTo(connectionID string, event Outbound) {
	g.mu.RLock()
	sender, ok := g.senders[connectionID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	if err := sender.Send(event); err != nil {
		log.Printf("[gateway] send to conn=%s failed: %v", connectionID, err)
	}
}

func (g *Gateway) sendError(connectionID, message string) {
	g.sendTo(connectionID, newOutbound(EventError, ErrorData{Message: message}))
}
