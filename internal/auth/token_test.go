package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate(chat.Identity{UserID: "u1", DisplayName: "Alice"}, time.Minute)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if identity.UserID != "u1" {
		t.Fatalf("unexpected user id: %s", identity.UserID)
	}
	if identity.DisplayName != "Alice" {
		t.Fatalf("unexpected display name: %s", identity.DisplayName)
	}
}

func TestJWTVerifierExpired(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate(chat.Identity{UserID: "u1", DisplayName: "Alice"}, -time.Minute)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTVerifierWrongSecret(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))
	other := NewJWTVerifier([]byte("other-secret"))

	token, err := other.Generate(chat.Identity{UserID: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTVerifierDisplayNameDefaultsToSub(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate(chat.Identity{UserID: "u1"}, time.Minute)
	if err != nil {
		t.Fatalf("Generate err: %v", err)
	}

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if identity.DisplayName != "u1" {
		t.Fatalf("expected display name to default to sub, got %s", identity.DisplayName)
	}
}

func TestInsecureVerifier(t *testing.T) {
	v := InsecureVerifier{}

	identity, err := v.Verify("u2:Bob")
	if err != nil {
		t.Fatalf("Verify err: %v", err)
	}
	if identity.UserID != "u2" || identity.DisplayName != "Bob" {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := v.Verify(""); err == nil {
		t.Fatal("expected error for empty credential")
	}
}
