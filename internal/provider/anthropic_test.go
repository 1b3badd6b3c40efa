package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "ak-test" {
			t.Fatalf("unexpected api key header: %s", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Fatal("missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be brief" {
			t.Fatalf("expected system message to be lifted, got %q", req.System)
		}
		if len(req.Messages) != 1 {
			t.Fatalf("expected 1 non-system message, got %d", len(req.Messages))
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"hello back"}],"usage":{"input_tokens":4,"output_tokens":2}}`)
	}))
	defer server.Close()

	adapter := NewAnthropic(AnthropicConfig{APIKey: "ak-test", BaseURL: server.URL, Timeout: time.Second})
	result, err := adapter.Complete(context.Background(), Request{
		Model: "claude-3-5-haiku-latest",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if result.Text != "hello back" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Provider != "anthropic" {
		t.Fatalf("unexpected provider: %s", result.Provider)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 6 {
		t.Fatalf("unexpected usage: %+v", result.Usage)
	}
}

func TestAnthropicCompleteUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer server.Close()

	adapter := NewAnthropic(AnthropicConfig{APIKey: "ak-test", BaseURL: server.URL, Timeout: time.Second})
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAnthropicCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"claude-3-5-haiku-latest","content":[]}`)
	}))
	defer server.Close()

	adapter := NewAnthropic(AnthropicConfig{APIKey: "ak-test", BaseURL: server.URL, Timeout: time.Second})
	_, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestAnthropicUnconfigured(t *testing.T) {
	adapter := NewAnthropic(AnthropicConfig{})
	if adapter.Configured() {
		t.Fatal("expected adapter to be unconfigured without credentials")
	}

	if err := adapter.HealthCheck(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
