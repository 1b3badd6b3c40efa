package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lumachat/luma-gateway/internal/auth"
	"github.com/lumachat/luma-gateway/internal/gateway"
	"github.com/lumachat/luma-gateway/internal/provider"
	"github.com/lumachat/luma-gateway/internal/service/chat"
	"github.com/lumachat/luma-gateway/internal/service/completion"
	"github.com/lumachat/luma-gateway/internal/service/presence"
	"github.com/lumachat/luma-gateway/internal/service/rooms"
	"github.com/lumachat/luma-gateway/internal/service/typing"

	wshandler "github.com/lumachat/luma-gateway/internal/handler/ws"
)

type staticCompleter struct{}

func (staticCompleter) Route(ctx context.Context, requestedModel string, messages []provider.Message, params provider.Params, enableFailover bool) completion.Result {
	return completion.Result{Text: "stub reply", Provider: "openai", Model: "gpt-4o-mini"}
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	gw := gateway.New(gateway.Config{}, presence.New(), rooms.New(), typing.New(0), chat.NewService(), staticCompleter{})
	handler := wshandler.New(gw, auth.InsecureVerifier{})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

type received struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// readUntil drains events until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) received {
	t.Helper()

	for i := 0; i < 20; i++ {
		var event received
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read err while waiting for %s: %v", eventType, err)
		}
		if event.Type == eventType {
			return event
		}
	}
	t.Fatalf("never received event %s", eventType)
	return received{}
}

func TestWebSocketRejectsBadCredential(t *testing.T) {
	server := setupServer(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without credential")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 refusal, got %+v", resp)
	}
}

func TestWebSocketConnectAndJoin(t *testing.T) {
	server := setupServer(t)
	conn := dial(t, server, "u1:Alice")

	connected := readUntil(t, conn, gateway.EventConnected)
	identity := connected.Data["identity"].(map[string]interface{})
	if identity["userId"] != "u1" || identity["displayName"] != "Alice" {
		t.Fatalf("unexpected identity payload: %+v", identity)
	}

	if err := conn.WriteJSON(gateway.Inbound{Type: gateway.EventJoin, ConversationID: "c1"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	joined := readUntil(t, conn, gateway.EventJoined)
	if joined.Data["conversationId"] != "c1" {
		t.Fatalf("unexpected joined payload: %+v", joined.Data)
	}

	online := readUntil(t, conn, gateway.EventOnlineUsers)
	if online.Data["count"].(float64) != 1 {
		t.Fatalf("unexpected online payload: %+v", online.Data)
	}
}

func TestWebSocketSendMessageBroadcast(t *testing.T) {
	server := setupServer(t)
	connA := dial(t, server, "u1:Alice")
	connB := dial(t, server, "u2:Bob")

	readUntil(t, connA, gateway.EventConnected)
	readUntil(t, connB, gateway.EventConnected)

	if err := connA.WriteJSON(gateway.Inbound{Type: gateway.EventJoin, ConversationID: "c1"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, connA, gateway.EventJoined)
	if err := connB.WriteJSON(gateway.Inbound{Type: gateway.EventJoin, ConversationID: "c1"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, connB, gateway.EventJoined)
	readUntil(t, connA, gateway.EventUserJoined)

	if err := connA.WriteJSON(gateway.Inbound{Type: gateway.EventSend, ConversationID: "c1", Content: "hello"}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	for _, conn := range []*websocket.Conn{connA, connB} {
		event := readUntil(t, conn, gateway.EventNewMessage)
		message := event.Data["message"].(map[string]interface{})
		if message["content"] != "hello" || message["role"] != "user" {
			t.Fatalf("unexpected message payload: %+v", message)
		}
	}

	// Both members eventually see the assistant completion.
	for _, conn := range []*websocket.Conn{connA, connB} {
		event := readUntil(t, conn, gateway.EventNewMessage)
		message := event.Data["message"].(map[string]interface{})
		if message["role"] != "assistant" || message["content"] == "" {
			t.Fatalf("unexpected completion payload: %+v", message)
		}
	}
}

func TestWebSocketMalformedEventSurvives(t *testing.T) {
	server := setupServer(t)
	conn := dial(t, server, "u1:Alice")
	readUntil(t, conn, gateway.EventConnected)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write err: %v", err)
	}
	errEvent := readUntil(t, conn, gateway.EventError)
	if errEvent.Data["message"] == "" {
		t.Fatal("expected error message for malformed payload")
	}

	// The connection is still usable afterwards.
	if err := conn.WriteJSON(gateway.Inbound{Type: gateway.EventHeartbeat}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readUntil(t, conn, gateway.EventHeartbeatAck)
}

func TestWebSocketUnsupportedEvent(t *testing.T) {
	server := setupServer(t)
	conn := dial(t, server, "u1:Alice")
	readUntil(t, conn, gateway.EventConnected)

	if err := conn.WriteJSON(gateway.Inbound{Type: "teleport"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	errEvent := readUntil(t, conn, gateway.EventError)
	if !strings.Contains(errEvent.Data["message"].(string), "unsupported") {
		t.Fatalf("unexpected error payload: %+v", errEvent.Data)
	}
}
