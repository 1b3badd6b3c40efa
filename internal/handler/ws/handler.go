// Package ws is the websocket transport in front of the gateway: it
// authenticates the connection, pumps inbound events into the orchestrator
// and serializes outbound writes.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lumachat/luma-gateway/internal/auth"
	"github.com/lumachat/luma-gateway/internal/gateway"
	"github.com/lumachat/luma-gateway/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Handler upgrades HTTP requests to websocket connections.
type Handler struct {
	gw       *gateway.Gateway
	verifier auth.Verifier
	upgrader websocket.Upgrader
}

// New creates the websocket handler.
func New(gw *gateway.Gateway, verifier auth.Verifier) *Handler {
	return &Handler{
		gw:       gw,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// connSender adapts one websocket connection to gateway.Sender. Writes are
// serialized with a mutex; gorilla connections allow one concurrent writer.
type connSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSender) Send(event gateway.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(event)
}

func (s *connSender) Close() error {
	s.mu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "inactive"),
		time.Now().Add(writeTimeout))
	s.mu.Unlock()
	return s.conn.Close()
}

// handleWebSocket authenticates, upgrades and runs the read loop. A bad
// credential refuses the connection before the upgrade completes; after
// that, malformed events only produce per-event error replies.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		credential = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	identity, err := h.verifier.Verify(credential)
	if err != nil {
		log.Printf("[websocket] authentication failed: %v", err)
		utils.RespondError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}

	connectionID := uuid.NewString()
	sender := &connSender{conn: conn}
	defer conn.Close()
	defer h.gw.Disconnect(connectionID)

	log.Printf("[websocket] new connection conn=%s user=%s", connectionID, identity.UserID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.gw.Touch(connectionID)
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.gw.Connect(connectionID, identity, sender)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error conn=%s: %v", connectionID, err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var event gateway.Inbound
		if err := json.Unmarshal(data, &event); err != nil {
			sender.Send(gateway.Outbound{
				Type:      gateway.EventError,
				Data:      gateway.ErrorData{Message: "malformed event payload"},
				Timestamp: time.Now().UnixMilli(),
			})
			continue
		}

		h.dispatch(ctx, connectionID, sender, event)
	}
}

// dispatch maps one inbound verb to its gateway operation.
func (h *Handler) dispatch(ctx context.Context, connectionID string, sender *connSender, event gateway.Inbound) {
	switch event.Type {
	case gateway.EventHeartbeat:
		h.gw.Heartbeat(connectionID)
	case gateway.EventJoin:
		h.gw.Join(connectionID, event.ConversationID)
	case gateway.EventLeave:
		h.gw.Leave(connectionID, event.ConversationID)
	case gateway.EventSend:
		h.gw.SendMessage(ctx, connectionID, event.ConversationID, event.Content)
	case gateway.EventTyping:
		h.gw.Typing(connectionID, event.ConversationID)
	case gateway.EventStopTyping:
		h.gw.StopTyping(connectionID, event.ConversationID)
	default:
		sender.Send(gateway.Outbound{
			Type:      gateway.EventError,
			Data:      gateway.ErrorData{Message: "unsupported event type: " + event.Type},
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// pingLoop keeps the transport alive; pongs refresh the read deadline and
// count as session activity.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
