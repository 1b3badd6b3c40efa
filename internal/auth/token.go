package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Verifier turns a connect-time credential into an authenticated identity.
type Verifier interface {
	Verify(credential string) (chat.Identity, error)
}

// JWTVerifier validates HS256 signed tokens carrying "sub" and "name" claims.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier with the given shared secret.
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify parses and validates the token, extracting the user identity.
func (v *JWTVerifier) Verify(credential string) (chat.Identity, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return chat.Identity{}, ErrExpiredToken
		}
		return chat.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return chat.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return chat.Identity{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return chat.Identity{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	name, _ := claims["name"].(string)
	if name == "" {
		name = sub
	}

	return chat.Identity{UserID: sub, DisplayName: name}, nil
}

// Generate mints a token for the given identity, mainly for tooling and tests.
func (v *JWTVerifier) Generate(identity chat.Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  identity.UserID,
		"name": identity.DisplayName,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// InsecureVerifier trusts a plain "userID:displayName" credential. It exists
// for local development when no AUTH_SECRET is configured and must never be
// used in production.
type InsecureVerifier struct{}

// Verify splits the credential into user id and display name.
func (InsecureVerifier) Verify(credential string) (chat.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return chat.Identity{}, ErrInvalidToken
	}

	userID, name, found := strings.Cut(credential, ":")
	if !found || name == "" {
		name = userID
	}
	if userID == "" {
		return chat.Identity{}, ErrInvalidToken
	}

	return chat.Identity{UserID: userID, DisplayName: name}, nil
}
